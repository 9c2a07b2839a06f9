package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// progressBar adapts schollz/progressbar to the pipeline progress hooks.
// Add is already safe for concurrent callers.
type progressBar struct {
	bar *progressbar.ProgressBar
}

func newProgressBar() *progressBar {
	return &progressBar{}
}

func (p *progressBar) Start(stage string, total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(stage),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *progressBar) Increment() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progressBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
