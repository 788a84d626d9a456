package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

type GojaEngine struct {
	mu  sync.Mutex
	vm  *goja.Runtime
	ctx context.Context
}

// NewEngine returns a runtime with the PdfCompressor constructor installed.
// Calls are serialized onto the single runtime.
func NewEngine(c Compressor) *GojaEngine {
	e := &GojaEngine{vm: goja.New(), ctx: context.Background()}
	e.registerCompressor(c)
	return e
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

func (e *GojaEngine) SetBytes(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.Set(name, e.vm.NewArrayBuffer(data))
}

func (e *GojaEngine) registerCompressor(c Compressor) {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		err := call.This.Set("compress", func(fc goja.FunctionCall) goja.Value {
			input, err := e.bytesArg(fc.Argument(0))
			if err != nil {
				panic(e.vm.NewTypeError(err.Error()))
			}
			out, err := c.Compress(e.ctx, input)
			if err != nil {
				panic(e.vm.NewGoError(err))
			}
			return e.vm.ToValue(e.vm.NewArrayBuffer(out))
		})
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
		return nil
	}
	e.vm.Set("PdfCompressor", ctor)
}

// bytesArg accepts an ArrayBuffer or any typed array view over one.
func (e *GojaEngine) bytesArg(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errors.New("compress expects a Uint8Array or ArrayBuffer")
	}
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return x.Bytes(), nil
	case []byte:
		return x, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("compress expects a Uint8Array or ArrayBuffer, got %s", v.ExportType())
	}
	bv := obj.Get("buffer")
	if bv == nil {
		return nil, errors.New("compress expects a Uint8Array or ArrayBuffer")
	}
	buf, ok := bv.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, errors.New("compress expects a Uint8Array or ArrayBuffer")
	}
	off := int(obj.Get("byteOffset").ToInteger())
	n := int(obj.Get("byteLength").ToInteger())
	data := buf.Bytes()
	if off < 0 || n < 0 || off+n > len(data) {
		return nil, errors.New("typed array view out of range")
	}
	return data[off : off+n], nil
}
