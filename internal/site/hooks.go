package site

import "context"

// BuildCompleteHook runs once after every page has been rendered and the
// publish tree has been written.
type BuildCompleteHook interface {
	OnBuildComplete(ctx context.Context) error
}

// HookFunc adapts a function to BuildCompleteHook.
type HookFunc func(ctx context.Context) error

func (f HookFunc) OnBuildComplete(ctx context.Context) error { return f(ctx) }

// TagRenderer renders the body of one latex tag to HTML.
type TagRenderer interface {
	RenderTag(ctx context.Context, page, rawOptions, body string) (string, error)
}
