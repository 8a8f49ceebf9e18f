// Package loader fetches, compiles and instantiates guests, then runs the
// bridge handshake: attach and start.
package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// DefaultMaxSize bounds fetched modules.
const DefaultMaxSize = 256 << 20

// WasmContentType is the media type that enables streaming compilation.
const WasmContentType = "application/wasm"

// Compiler compiles a complete module binary.
type Compiler interface {
	Compile(ctx context.Context, wasm []byte) (*engine.Module, error)
}

// StreamCompiler can compile while the body is still arriving.
type StreamCompiler interface {
	Compiler
	CompileStream(ctx context.Context, r io.Reader) (*engine.Module, error)
}

// Config holds loader configuration.
type Config struct {
	// MaxSize is the largest module accepted, in bytes. 0 means
	// DefaultMaxSize.
	MaxSize int64

	// Client fetches http(s) locations. nil means http.DefaultClient.
	Client *http.Client

	// Compiler overrides the engine as compiler.
	Compiler Compiler

	// SkipStart leaves the entry point for the caller to run.
	SkipStart bool
}

// Loader turns sources into running instances.
type Loader struct {
	engine   *engine.Engine
	compiler Compiler
	client   *http.Client
	maxSize  int64
	noStart  bool
}

// New creates a loader. A nil cfg uses defaults.
func New(eng *engine.Engine, cfg *Config) *Loader {
	l := &Loader{
		engine:   eng,
		compiler: eng,
		client:   http.DefaultClient,
		maxSize:  DefaultMaxSize,
	}
	if cfg != nil {
		if cfg.MaxSize > 0 {
			l.maxSize = cfg.MaxSize
		}
		if cfg.Client != nil {
			l.client = cfg.Client
		}
		if cfg.Compiler != nil {
			l.compiler = cfg.Compiler
		}
		l.noStart = cfg.SkipStart
	}
	return l
}

// Load compiles src, instantiates it against b and runs the entry point.
// When Load compiled the module itself and fails after compiling, the
// module is closed; a module passed in with FromModule stays the caller's.
func (l *Loader) Load(ctx context.Context, src Source, b *bridge.Bridge) (*engine.Instance, error) {
	mod, err := l.Compile(ctx, src)
	if err != nil {
		return nil, err
	}
	owned := src.kind != kindModule
	discard := func() {
		if !owned {
			return
		}
		if err := mod.Close(ctx); err != nil {
			Logger().Warn("close module", zap.Stringer("source", src), zap.Error(err))
		}
	}

	inst, err := l.engine.Instantiate(ctx, mod, b, nil)
	if err != nil {
		discard()
		return nil, err
	}
	if l.noStart {
		return inst, nil
	}
	if err := inst.Start(ctx); err != nil {
		_ = inst.Close(ctx)
		discard()
		return nil, err
	}
	return inst, nil
}

// Compile resolves src to a compiled module.
func (l *Loader) Compile(ctx context.Context, src Source) (*engine.Module, error) {
	switch src.kind {
	case kindModule:
		if src.module == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "nil module")
		}
		return src.module, nil
	case kindBytes:
		if int64(len(src.bytes)) > l.maxSize {
			return nil, l.tooLarge(src, int64(len(src.bytes)))
		}
		return l.compiler.Compile(ctx, src.bytes)
	case kindLocation:
		return l.fetch(ctx, src)
	default:
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty source")
	}
}

func (l *Loader) fetch(ctx context.Context, src Source) (*engine.Module, error) {
	loc := src.location
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		return l.fetchHTTP(ctx, src)
	case strings.HasPrefix(loc, "file://"):
		u, err := url.Parse(loc)
		if err != nil {
			return nil, errors.Load("parse "+loc, err)
		}
		return l.fetchFile(ctx, src, u.Path)
	default:
		return l.fetchFile(ctx, src, loc)
	}
}

func (l *Loader) fetchFile(ctx context.Context, src Source, path string) (*engine.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > l.maxSize {
		return nil, l.tooLarge(src, info.Size())
	}
	wasm, err := l.readAll(src, f)
	if err != nil {
		return nil, err
	}
	Logger().Debug("loaded module from file", zap.String("path", path), zap.Int("bytes", len(wasm)))
	return l.compiler.Compile(ctx, wasm)
}

func (l *Loader) fetchHTTP(ctx context.Context, src Source) (*engine.Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.location, nil)
	if err != nil {
		return nil, errors.Load("request "+src.location, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Load("fetch "+src.location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Load(fmt.Sprintf("fetch %s: %s", src.location, resp.Status), nil)
	}
	if resp.ContentLength > l.maxSize {
		return nil, l.tooLarge(src, resp.ContentLength)
	}

	if sc, ok := l.compiler.(StreamCompiler); ok {
		if isWasm(resp.Header.Get("Content-Type")) {
			Logger().Debug("streaming compile", zap.String("url", src.location))
			return sc.CompileStream(ctx, &limitedReader{r: resp.Body, left: l.maxSize, src: src, l: l})
		}
		Logger().Warn("server did not serve application/wasm; compiling from buffer",
			zap.String("url", src.location),
			zap.String("content_type", resp.Header.Get("Content-Type")))
	}

	wasm, err := l.readAll(src, resp.Body)
	if err != nil {
		return nil, err
	}
	return l.compiler.Compile(ctx, wasm)
}

func (l *Loader) readAll(src Source, r io.Reader) ([]byte, error) {
	wasm, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, errors.Load("read "+src.String(), err)
	}
	if int64(len(wasm)) > l.maxSize {
		return nil, l.tooLarge(src, int64(len(wasm)))
	}
	return wasm, nil
}

func (l *Loader) tooLarge(src Source, size int64) error {
	return errors.New(errors.PhaseLoad, errors.KindTooLarge).
		Detail("%s is %d bytes, limit %d", src, size, l.maxSize).
		Build()
}

func isWasm(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == WasmContentType
}

// limitedReader fails once more than left bytes have been read.
type limitedReader struct {
	r    io.Reader
	left int64
	src  Source
	l    *Loader
	read int64
}

func (r *limitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.read += int64(n)
	if r.read > r.left {
		return n, r.l.tooLarge(r.src, r.read)
	}
	return n, err
}
