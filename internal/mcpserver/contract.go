package mcpserver

// AssetLayoutContract describes how documents must reference embedded files
// so that the assets follow the document when it is moved.
const AssetLayoutContract = `# Asset Layout Contract

Every document keeps its embedded files in an ` + "`assets/`" + ` directory that
sits next to the document itself.

## Rules

1. Reference embedded files with a relative image link:
   ` + "`![description](assets/filename.png)`" + `
2. The link target starts with ` + "`assets/`" + ` and names a file directly
   inside that directory. Sub-folders and ` + "`..`" + ` are not followed.
3. Titles are allowed: ` + "`![chart](assets/chart.png \"Q3\")`" + `.
4. Percent-encoded names are decoded: ` + "`assets/my%20photo.jpg`" + `.
5. Moving a document to another folder moves every referenced asset into
   the new folder's ` + "`assets/`" + ` directory, replacing files of the same name.
   Assets that were not in the old folder are reported as missing.
6. Renaming a document inside the same folder leaves its assets in place.

## Example

` + "```" + `markdown
# Trip report

![Map of the route](assets/route.png)
![Summit](assets/summit%201.jpg)
` + "```" + `
`
