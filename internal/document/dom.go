package document

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// installHost exposes the minimal window/document surface to page scripts.
func (e *Engine) installHost(vm *goja.Runtime, page *Page) {
	console := vm.NewObject()
	_ = console.Set("log", e.consoleFunc(zapcore.InfoLevel))
	_ = console.Set("info", e.consoleFunc(zapcore.InfoLevel))
	_ = console.Set("warn", e.consoleFunc(zapcore.WarnLevel))
	_ = console.Set("error", e.consoleFunc(zapcore.ErrorLevel))
	_ = console.Set("debug", e.consoleFunc(zapcore.DebugLevel))

	location := vm.NewObject()
	_ = location.Set("href", page.URL)

	doc := vm.NewObject()
	_ = doc.Set("title", page.Title)
	_ = doc.Set("URL", page.URL)
	_ = doc.Set("addEventListener", e.addEventListener)

	global := vm.GlobalObject()
	_ = global.Set("addEventListener", e.addEventListener)
	_ = vm.Set("window", global)
	_ = vm.Set("document", doc)
	_ = vm.Set("console", console)
	_ = vm.Set("location", location)
}

func (e *Engine) consoleFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	logger := e.logger.Named("console")
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if ce := logger.Check(level, strings.Join(parts, " ")); ce != nil {
			ce.Write(zap.String("url", e.URL()))
		}
		return goja.Undefined()
	}
}

// addEventListener records a listener for the current document.
func (e *Engine) addEventListener(call goja.FunctionCall) goja.Value {
	typ := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok || typ == "" {
		return goja.Undefined()
	}
	e.handlers[typ] = append(e.handlers[typ], fn)
	return goja.Undefined()
}

// dispatch delivers ev to the current document's listeners and reports
// whether any of them called preventDefault. Loop only.
func (e *Engine) dispatch(ev Event) bool {
	if e.vm == nil {
		return false
	}
	handlers := e.handlers[ev.Type]
	if len(handlers) == 0 {
		return false
	}

	vm := e.vm
	prevented := false

	target := vm.NewObject()
	_ = target.Set("tagName", ev.Target.TagName())
	_ = target.Set("src", ev.Target.Src)
	_ = target.Set("href", ev.Target.Href)
	_ = target.Set("textContent", ev.Target.Text)

	obj := vm.NewObject()
	_ = obj.Set("type", ev.Type)
	_ = obj.Set("target", target)
	_ = obj.Set("pageX", ev.PageX)
	_ = obj.Set("pageY", ev.PageY)
	_ = obj.Set("clientX", ev.PageX)
	_ = obj.Set("clientY", ev.PageY)
	_ = obj.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		prevented = true
		return goja.Undefined()
	})

	for _, h := range handlers {
		if _, err := e.guard(func(*goja.Runtime) (goja.Value, error) {
			return h(goja.Undefined(), obj)
		}); err != nil {
			e.logger.Warn("event listener failed", zap.String("type", ev.Type), zap.Error(err))
		}
	}
	return prevented
}
