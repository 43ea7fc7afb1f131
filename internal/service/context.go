package service

import "context"

type pluginIDKey struct{}

// WithPluginID marks ctx as belonging to pluginID. The resolver does this
// before calling a plugin-scoped factory.
func WithPluginID(ctx context.Context, pluginID string) context.Context {
	return context.WithValue(ctx, pluginIDKey{}, pluginID)
}

// PluginIDFrom returns the plugin id carried by ctx, or "" in root scope.
func PluginIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(pluginIDKey{}).(string)
	return id
}
