package fakebrowser

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var errStale = errors.New("element is not attached to the current document")

var _ output.ElementHandle = (*Element)(nil)

type Element struct {
	b    *Browser
	node *html.Node
}

func (e *Element) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

func (e *Element) check() error {
	if e.b.closed.Load() {
		return entity.ErrContextClosed
	}
	if !e.b.attached(e.node) {
		return errStale
	}
	return nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	if e.b.closed.Load() {
		return false, entity.ErrContextClosed
	}
	if !e.b.attached(e.node) {
		return false, nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hiddenNode(n) {
			return false, nil
		}
	}
	return true, nil
}

func hiddenNode(n *html.Node) bool {
	switch n.Data {
	case "head", "script", "style", "template", "noscript":
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "type":
			if n.Data == "input" && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(e.sel().Text()), " "), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(); err != nil {
		return "", false, err
	}
	v, ok := e.sel().Attr(name)
	return v, ok, nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return e.node.Data, nil
}

func (e *Element) Box(ctx context.Context) (entity.Rect, error) {
	if err := e.check(); err != nil {
		return entity.Rect{}, err
	}
	row := e.b.rowOf(e.node)
	return entity.Rect{
		X:      boxLeft,
		Y:      float64(row)*rowHeight + 5 - e.b.scrollY,
		Width:  boxWidth,
		Height: boxHeight,
	}, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	top := float64(e.b.rowOf(e.node)) * rowHeight
	vh := float64(e.b.viewport.Height)
	if top-e.b.scrollY < 0 || top-e.b.scrollY+rowHeight > vh {
		y := top - vh/2
		if y < 0 {
			y = 0
		}
		e.b.scrollY = y
	}
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.b.focused = e.node
	return nil
}

// device is the Browser seen through its InputDevice surface.
type device Browser

var _ output.InputDevice = (*device)(nil)

func (d *device) browser() *Browser { return (*Browser)(d) }

func (d *device) MoveMouse(ctx context.Context, p entity.Point) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	b.cursor = p
	b.mu.Lock()
	b.moves++
	b.mu.Unlock()
	return nil
}

func (d *device) MouseDown(ctx context.Context) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	b.record("mousedown")
	return nil
}

func (d *device) MouseUp(ctx context.Context) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	b.click(b.cursor)
	return nil
}

func (d *device) Wheel(ctx context.Context, deltaX, deltaY float64) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	b.scrollY += deltaY
	if b.scrollY < 0 {
		b.scrollY = 0
	}
	b.record("wheel")
	for _, a := range b.site.scrollActions() {
		a(b)
	}
	return nil
}

func (d *device) InsertText(ctx context.Context, text string) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	if b.focused == nil || !isEditable(b.focused) {
		return errors.New("no editable element focused")
	}
	sel := goquery.NewDocumentFromNode(b.focused).Selection
	sel.SetAttr("value", sel.AttrOr("value", "")+text)
	b.record("key:" + text)
	return nil
}

func (d *device) Backspace(ctx context.Context) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	if b.focused == nil || !isEditable(b.focused) {
		return errors.New("no editable element focused")
	}
	sel := goquery.NewDocumentFromNode(b.focused).Selection
	v := sel.AttrOr("value", "")
	if v != "" {
		_, size := utf8.DecodeLastRuneInString(v)
		sel.SetAttr("value", v[:len(v)-size])
	}
	b.record("backspace")
	return nil
}

func (d *device) Enter(ctx context.Context) error {
	b := d.browser()
	if b.closed.Load() {
		return entity.ErrContextClosed
	}
	b.record("enter")
	if b.focused == nil {
		return nil
	}
	sel := goquery.NewDocumentFromNode(b.focused).Selection
	for _, bind := range b.site.bindings(&b.site.enters) {
		if sel.Closest(bind.css).Length() > 0 {
			bind.action(b)
			return nil
		}
	}
	return nil
}
