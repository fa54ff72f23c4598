package ui

import (
	"embed"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var assets embed.FS

var (
	tmplOnce sync.Once
	tmpl     *template.Template
)

// Templates 返回解析后的页面模板（panic on error，模板随二进制嵌入）。
func Templates() *template.Template {
	tmplOnce.Do(func() {
		tmpl = template.Must(template.ParseFS(assets, "templates/*.html"))
	})
	return tmpl
}
