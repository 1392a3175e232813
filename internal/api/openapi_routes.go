package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

const (
	openAPIFile  = "docs/api/openapi.yaml"
	localRedocJS = "static/vendors/redoc/redoc.standalone.js"
	cdnRedocJS   = "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"
)

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
}

func serveOpenAPI(c *gin.Context) {
	if _, err := os.Stat(openAPIFile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口文档不存在",
		})
		return
	}
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File(openAPIFile)
}

func serveRedoc(c *gin.Context) {
	// 优先使用本地 redoc 资源，离线可用；否则回退到 CDN
	script := cdnRedocJS
	if _, err := os.Stat(localRedocJS); err == nil {
		script = "/" + localRedocJS
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Coup API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc spec-url="/openapi" hide-download-button></redoc>
    <script src="%s"></script>
  </body>
</html>`, script)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
