package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openAPISpec []byte

var routeIndex = template.Must(template.New("routes").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>voice forth bridge</title></head>
<body>
<h1>voice forth bridge</h1>
<p>Machine-readable description: <a href="/docs/openapi.yaml">openapi.yaml</a></p>
<table>
<tr><th>Method</th><th>Path</th></tr>
{{range .}}<tr><td>{{.Method}}</td><td><code>{{.Path}}</code></td></tr>
{{end}}</table>
</body>
</html>
`))

// registerDocs serves the OpenAPI document and an index of the live routes.
func registerDocs(e *echo.Echo) {
	e.GET("/docs/openapi.yaml", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", openAPISpec)
	})
	e.GET("/docs", func(c echo.Context) error {
		routes := e.Routes()
		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})
		var buf bytes.Buffer
		if err := routeIndex.Execute(&buf, routes); err != nil {
			return err
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	})
}
