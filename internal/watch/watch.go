// Package watch renders a live view of a measured run: per-node
// liveness on top, the reconciliation event tail below.
package watch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jroimartin/gocui"

	"github.com/YinWang3026/dynago/pkg/harness"
	"github.com/YinWang3026/dynago/pkg/node"
)

const eventTail = 256

type watcher struct {
	mu     sync.Mutex
	status map[string]string
	lines  []string
	result string
}

// Run drives harness.Measure under a TUI and blocks until the run ends
// and the user quits.
func Run(p harness.Params) error {
	events := make(chan node.Event, 1024)
	p.Events = events

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer g.Close()

	w := &watcher{status: make(map[string]string)}
	g.SetManagerFunc(w.layout)
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}

	go w.consume(g, events)
	go func() {
		res, err := harness.Measure(p)
		w.mu.Lock()
		if err != nil {
			w.result = fmt.Sprintf("run failed: %v", err)
		} else {
			w.result = fmt.Sprintf("availability=%.3f inconsistent=%.3f stale=%.3f (q to quit)",
				res.Availability, res.Inconsistent, res.StaleReads)
		}
		w.mu.Unlock()
		g.Update(func(*gocui.Gui) error { return nil })
	}()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func quit(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }

func (w *watcher) consume(g *gocui.Gui, events <-chan node.Event) {
	for e := range events {
		w.mu.Lock()
		switch e.Type {
		case node.EventCrash:
			w.status[e.Node] = "crashed"
		case node.EventRecover:
			w.status[e.Node] = "up"
		case node.EventMarkDead:
			if peer, ok := e.Fields["peer"].(string); ok {
				w.appendLocked(fmt.Sprintf("%s  %s marks %s dead", e.Time.Format("15:04:05.000"), e.Node, peer))
			}
		case node.EventMarkAlive:
			if peer, ok := e.Fields["peer"].(string); ok {
				w.appendLocked(fmt.Sprintf("%s  %s marks %s alive", e.Time.Format("15:04:05.000"), e.Node, peer))
			}
		default:
			w.appendLocked(fmt.Sprintf("%s  %s %s %v", e.Time.Format("15:04:05.000"), e.Node, e.Type, e.Fields))
		}
		if _, ok := w.status[e.Node]; !ok {
			w.status[e.Node] = "up"
		}
		w.mu.Unlock()
		g.Update(func(*gocui.Gui) error { return nil })
	}
}

func (w *watcher) appendLocked(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > eventTail {
		w.lines = w.lines[len(w.lines)-eventTail:]
	}
}

func (w *watcher) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	cluster, err := g.SetView("cluster", 0, 0, maxX-1, 4)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	events, err := g.SetView("events", 0, 5, maxX-1, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	if cluster == nil || events == nil {
		return nil
	}
	cluster.Title = "cluster"
	cluster.Clear()
	events.Title = "events"
	events.Clear()

	w.mu.Lock()
	defer w.mu.Unlock()

	nodes := make([]string, 0, len(w.status))
	for n := range w.status {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		fmt.Fprintf(cluster, "%s[%s]  ", n, w.status[n])
	}
	if w.result != "" {
		fmt.Fprintf(cluster, "\n%s", w.result)
	}

	start := 0
	if visible := maxY - 8; len(w.lines) > visible && visible > 0 {
		start = len(w.lines) - visible
	}
	for _, line := range w.lines[start:] {
		fmt.Fprintln(events, line)
	}
	return nil
}
