package ui

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/*
var assets embed.FS

// StaticFS 返回静态资源的 http.FileSystem。
func StaticFS() (http.FileSystem, error) {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}

// Index 解析嵌入的首页模板。
func Index() (*template.Template, error) {
	return template.ParseFS(assets, "static/index.html")
}
