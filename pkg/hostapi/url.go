package hostapi

import (
	"net/url"

	"github.com/dop251/goja"
)

// installURL installs a minimal WHATWG-flavored URL constructor backed by
// net/url.Parse, exposing the handful of fields scripts typically read.
func installURL(rt *goja.Runtime) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		raw := call.Argument(0).String()
		parsed, err := url.Parse(raw)
		if err != nil {
			panic(rt.NewTypeError("invalid URL: " + err.Error()))
		}

		obj := call.This
		_ = obj.Set("href", raw)
		_ = obj.Set("protocol", parsed.Scheme+":")
		_ = obj.Set("host", parsed.Host)
		_ = obj.Set("hostname", parsed.Hostname())
		_ = obj.Set("port", parsed.Port())
		_ = obj.Set("pathname", parsed.Path)
		search := ""
		if parsed.RawQuery != "" {
			search = "?" + parsed.RawQuery
		}
		hash := ""
		if parsed.Fragment != "" {
			hash = "#" + parsed.Fragment
		}
		_ = obj.Set("search", search)
		_ = obj.Set("hash", hash)
		_ = obj.Set("toString", func(goja.FunctionCall) goja.Value {
			return rt.ToValue(raw)
		})
		return nil
	}

	return rt.Set("URL", ctor)
}
