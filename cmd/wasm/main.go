//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/hack-pad/hackpadfs/indexeddb"

	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/kernel"
	"github.com/kittclouds/nodegraph/internal/logs"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// Version info
const Version = "0.1.0"

// Database and channel names shared by every tab of the app.
const (
	dbName      = "nodegraph"
	channelName = "nodegraph-notify"
)

// Global state
var (
	mu sync.Mutex
	k  *kernel.Kernel
	// Resources handed out to JS, by id. Reloaded on every load call.
	loaded = make(map[string]*resource.Resource)
)

func main() {
	println("[nodegraph] WASM Ready v" + Version)

	js.Global().Set("NodeGraph", js.ValueOf(map[string]interface{}{
		"version":   js.FuncOf(getVersion),
		"boot":      js.FuncOf(boot),
		"get":       js.FuncOf(get),
		"list":      js.FuncOf(list),
		"backlinks": js.FuncOf(backlinks),
		"save":      js.FuncOf(save),
		"load":      js.FuncOf(load),
		"call":      js.FuncOf(call),
		"launch":    js.FuncOf(launch),
		"subscribe": js.FuncOf(subscribe),
	}))

	select {}
}

// getVersion returns the module version
func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// async runs fn off the event loop and returns a Promise of its JSON
// result. IndexedDB calls block until the event loop runs, so every export
// that touches the store goes through here.
func async(fn func() (any, error)) interface{} {
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve := args[0]
		go func() {
			v, err := fn()
			if err != nil {
				resolve.Invoke(errorResult(err.Error()))
				return
			}
			resolve.Invoke(jsonResult(v))
		}()
		return nil
	})
	defer handler.Release()
	return js.Global().Get("Promise").New(handler)
}

func current() (*kernel.Kernel, error) {
	mu.Lock()
	defer mu.Unlock()
	if k == nil {
		return nil, errors.New("not booted")
	}
	return k, nil
}

// boot opens the IndexedDB store, seeds and replays the graph and starts
// following other tabs.
// Args: [defaultApp string] - optional
func boot(this js.Value, args []js.Value) interface{} {
	defaultApp := config.DefaultApp
	if len(args) > 0 && args[0].Type() == js.TypeString && args[0].String() != "" {
		defaultApp = args[0].String()
	}

	return async(func() (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if k != nil {
			return "already booted", nil
		}

		ctx := context.Background()
		fs, err := indexeddb.NewFS(ctx, dbName, indexeddb.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to create idb fs: %w", err)
		}
		durable, err := store.NewFSStore(fs, "graph")
		if err != nil {
			return nil, err
		}

		logger, _, err := logs.New(config.Log{Level: "info", Format: "text"}, consoleWriter{})
		if err != nil {
			return nil, err
		}
		booted, err := kernel.Boot(ctx, kernel.Options{
			Durable:    durable,
			Channel:    newBroadcastChannel(channelName),
			DefaultApp: defaultApp,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}

		go func() {
			if err := booted.Run(ctx); err != nil {
				logger.Error("sync loop stopped", "error", err)
			}
		}()
		k = booted
		return map[string]any{"nodes": booted.Graph.Store.Len(), "origin": booted.Adapter.Origin()}, nil
	})
}

// get returns the node record under id, or null.
// Args: [id string]
func get(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("get requires 1 arg: id (string)")
	}
	cur, err := current()
	if err != nil {
		return errorResult(err.Error())
	}
	node, err := cur.Graph.Get(args[0].String())
	if errors.Is(err, graph.ErrNotFound) {
		return jsonResult(nil)
	}
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(node)
}

// list returns node records in id order.
// Args: [type string] - optional type id filter
func list(this js.Value, args []js.Value) interface{} {
	cur, err := current()
	if err != nil {
		return errorResult(err.Error())
	}
	if len(args) > 0 && args[0].Type() == js.TypeString {
		return jsonResult(cur.Graph.Store.OfType(args[0].String()))
	}
	all := cur.Graph.Store.Nodes()
	nodes := make([]*graph.Node, 0, len(all))
	for _, id := range cur.Graph.Store.IDs() {
		nodes = append(nodes, all[id])
	}
	return jsonResult(nodes)
}

// backlinks returns the ids linking to id.
// Args: [id string]
func backlinks(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("backlinks requires 1 arg: id (string)")
	}
	cur, err := current()
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(cur.Graph.Backlinks.Get(args[0].String()))
}

// save persists nodes and returns them with their ids.
// Args: [nodesJSON string] - JSON array of nodes
func save(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("save requires 1 arg: nodesJSON (string)")
	}
	var nodes []*graph.Node
	if err := json.Unmarshal([]byte(args[0].String()), &nodes); err != nil {
		return errorResult("invalid nodes json: " + err.Error())
	}
	return async(func() (any, error) {
		cur, err := current()
		if err != nil {
			return nil, err
		}
		return cur.Save(context.Background(), nodes)
	})
}

// load builds the resource for id and keeps it for later calls.
// Args: [id string]
func load(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("load requires 1 arg: id (string)")
	}
	id := args[0].String()
	return async(func() (any, error) {
		cur, err := current()
		if err != nil {
			return nil, err
		}
		res, err := cur.Load(context.Background(), id)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		loaded[id] = res
		mu.Unlock()
		return res, nil
	})
}

// call invokes a method of a loaded resource. Arguments are passed as
// decoded JSON values.
// Args: [id string, method string, argsJSON string]
func call(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("call requires 2 args: id (string), method (string)")
	}
	id, method := args[0].String(), args[1].String()
	var callArgs []any
	if len(args) > 2 && args[2].Type() == js.TypeString && args[2].String() != "" {
		if err := json.Unmarshal([]byte(args[2].String()), &callArgs); err != nil {
			return errorResult("invalid args json: " + err.Error())
		}
	}
	return async(func() (any, error) {
		mu.Lock()
		res, ok := loaded[id]
		mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%s is not loaded", id)
		}
		return res.Call(context.Background(), method, callArgs...)
	})
}

// launch starts an application, falling back to the default one.
// Args: [id string] - optional
func launch(this js.Value, args []js.Value) interface{} {
	id := ""
	if len(args) > 0 && args[0].Type() == js.TypeString {
		id = args[0].String()
	}
	return async(func() (any, error) {
		cur, err := current()
		if err != nil {
			return nil, err
		}
		launched, err := cur.Launch(context.Background(), id)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		loaded[launched.Resource.ID] = launched.Resource
		mu.Unlock()
		return map[string]any{"id": launched.Resource.ID, "result": launched.Result}, nil
	})
}

// subscribe calls fn(changeJSON) whenever a node record changes in the
// graph, locally or from another tab. Returns an unsubscribe function.
// Args: [fn function]
func subscribe(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return errorResult("subscribe requires 1 arg: fn (function)")
	}
	cur, err := current()
	if err != nil {
		return errorResult(err.Error())
	}
	fn := args[0]
	unsubscribe := cur.Graph.Store.Subscribe(func(c graph.Change) {
		data, _ := json.Marshal(map[string]any{"id": c.ID, "node": c.Node})
		fn.Invoke(string(data))
	})

	var release js.Func
	release = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		unsubscribe()
		release.Release()
		return nil
	})
	return release
}

// consoleWriter sends log lines to the browser console.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	js.Global().Get("console").Call("log", string(p))
	return len(p), nil
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	result := map[string]interface{}{
		"error": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return string(jsonBytes)
}

// Helper: Create success result
func jsonResult(v any) interface{} {
	result := map[string]interface{}{
		"success": v,
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return string(jsonBytes)
}
