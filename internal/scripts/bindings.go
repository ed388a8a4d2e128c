package scripts

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/restpad/restpad/internal/httpclient"
)

const deepFreezeSource = `(function freeze(o) {
	if (o !== null && typeof o === "object" && !Object.isFrozen(o)) {
		Object.freeze(o);
		for (const k of Object.keys(o)) freeze(o[k]);
	}
	return o;
})`

type bindings struct {
	vm        *goja.Runtime
	ctx       context.Context
	env       Env
	transport httpclient.Transport
	logger    *zap.Logger

	stringify goja.Callable
	parse     goja.Callable
}

// args returns the positional arguments matching preParams or postParams.
func (b *bindings) args() ([]goja.Value, error) {
	jsonObj := b.vm.Get("JSON").ToObject(b.vm)
	b.stringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))
	b.parse, _ = goja.AssertFunction(jsonObj.Get("parse"))

	args := []goja.Value{
		b.vm.ToValue(b.getVar),
		b.vm.ToValue(b.setVar),
		b.vm.ToValue(b.log),
		b.vm.ToValue(b.http),
	}
	if b.env.Phase != PhasePost {
		return args, nil
	}

	freezeVal, err := b.vm.RunString(deepFreezeSource)
	if err != nil {
		return nil, err
	}
	freeze, _ := goja.AssertFunction(freezeVal)

	var info any
	if b.env.Response != nil {
		info = b.env.Response
	}
	for _, v := range []any{info, b.env.ResponseData} {
		jsVal, err := b.toJS(v)
		if err != nil {
			return nil, err
		}
		frozen, err := freeze(goja.Undefined(), jsVal)
		if err != nil {
			return nil, err
		}
		args = append(args, frozen)
	}
	return args, nil
}

// toJS copies v into the runtime as plain JS data.
func (b *bindings) toJS(v any) (goja.Value, error) {
	if v == nil {
		return goja.Null(), nil
	}
	if s, ok := v.(string); ok {
		return b.vm.ToValue(s), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b.parse(goja.Undefined(), b.vm.ToValue(string(raw)))
}

func (b *bindings) getVar(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	if value, ok := b.env.Scope.Get(key); ok {
		return b.vm.ToValue(value)
	}
	return goja.Undefined()
}

func (b *bindings) setVar(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	value := call.Argument(1).String()
	if err := b.env.Scope.Set(key, value); err != nil {
		panic(b.vm.NewGoError(err))
	}
	b.env.Out.Add(b.env.Phase.tag() + " setVar " + key + " = " + value)
	return goja.Undefined()
}

func (b *bindings) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, b.format(arg))
	}
	b.env.Out.Add(b.env.Phase.tag() + " " + strings.Join(parts, " "))
	return goja.Undefined()
}

// format pretty-prints objects as JSON and coerces everything else to a string.
func (b *bindings) format(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return v.String()
	}
	out, err := b.stringify(goja.Undefined(), v, goja.Null(), b.vm.ToValue(2))
	if err != nil || out == nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}

func (b *bindings) http(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := b.vm.NewPromise()

	url := call.Argument(0).String()
	opts := b.requestOptions(call.Argument(1))
	b.env.Out.Add("[HTTP] " + opts.Method + " " + url)

	fail := func(msg string) goja.Value {
		b.env.Out.Add("[HTTP Error] " + msg)
		errCtor := b.vm.Get("Error")
		errVal, err := b.vm.New(errCtor, b.vm.ToValue("HTTP request failed: "+msg))
		if err != nil {
			reject(b.vm.ToValue("HTTP request failed: " + msg))
		} else {
			reject(errVal)
		}
		return b.vm.ToValue(promise)
	}

	if b.transport == nil {
		return fail("no transport configured")
	}
	resp, err := b.transport.Send(b.ctx, url, opts)
	if err != nil {
		b.logger.Debug("script http failed", zap.String("url", url), zap.Error(err))
		return fail(err.Error())
	}
	b.env.Out.Add("[HTTP] " + resp.Status())

	data, err := httpclient.DecodeBody(resp)
	if err != nil {
		return fail(err.Error())
	}
	result, err := b.toJS(map[string]any{
		"status":     resp.StatusCode,
		"statusText": resp.StatusText,
		"headers":    resp.HeaderMap(),
		"data":       data,
	})
	if err != nil {
		return fail(err.Error())
	}
	resolve(result)
	return b.vm.ToValue(promise)
}

// requestOptions reads {method, headers, body} from the second http()
// argument. Non-string bodies are sent as JSON.
func (b *bindings) requestOptions(v goja.Value) httpclient.Options {
	opts := httpclient.Options{Method: "GET"}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return opts
	}
	obj := v.ToObject(b.vm)

	if m := obj.Get("method"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
		if method := strings.ToUpper(strings.TrimSpace(m.String())); method != "" {
			opts.Method = method
		}
	}
	if h := obj.Get("headers"); h != nil && !goja.IsUndefined(h) && !goja.IsNull(h) {
		hobj := h.ToObject(b.vm)
		opts.Headers = make(map[string]string)
		for _, key := range hobj.Keys() {
			opts.Headers[key] = hobj.Get(key).String()
		}
	}
	if body := obj.Get("body"); body != nil && !goja.IsUndefined(body) && !goja.IsNull(body) {
		text := body.String()
		if _, isObj := body.(*goja.Object); isObj {
			if out, err := b.stringify(goja.Undefined(), body); err == nil && !goja.IsUndefined(out) {
				text = out.String()
			}
		}
		opts.Body = &text
	}
	return opts
}
