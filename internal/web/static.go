package web

import (
	"embed"
)

// staticFiles holds the embedded HTML for the capture trigger page.
//
//go:embed static/*
var staticFiles embed.FS
