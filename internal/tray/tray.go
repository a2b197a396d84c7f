// Package tray shows the kmhook status icon using getlantern/systray.
package tray

import (
	"encoding/binary"
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID        int
	Title     string
	Callback  func()
	Checkable bool
	Checked   bool
	item      *systray.MenuItem
}

// Tray manages the status icon, a read-only status line and the menu.
type Tray struct {
	title   string
	tooltip string

	mu     sync.Mutex
	items  []*MenuItem
	status string
	line   *systray.MenuItem

	readyCh chan struct{}
	quitCh  chan struct{}
	quit    sync.Once
}

// New creates a new tray. Items are added before Run.
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{ID: id, Title: title, Callback: callback})
	return id
}

// AddCheckboxItem adds a menu item showing a check mark. The callback does
// not toggle the mark; use SetItemChecked.
func (t *Tray) AddCheckboxItem(title string, checked bool, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{ID: id, Title: title, Callback: callback, Checkable: true, Checked: checked})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil)
}

// SetItemChecked sets the checked state of a menu item. Before Run the state
// is kept and applied when the menu is built.
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	mi := t.items[id]
	mi.Checked = checked
	switch {
	case mi.item == nil:
	case checked:
		mi.item.Check()
	default:
		mi.item.Uncheck()
	}
}

// ItemChecked reports the checked state last set for a menu item.
func (t *Tray) ItemChecked(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return false
	}
	return t.items[id].Checked
}

// SetStatus replaces the status line, e.g. "running (evdev)". It may be
// called before the tray is ready.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.line != nil {
		t.line.SetTitle(status)
		systray.SetTooltip(t.tooltip + ": " + status)
	}
}

// Status returns the last status set.
func (t *Tray) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Ready is closed once the menu exists.
func (t *Tray) Ready() <-chan struct{} { return t.readyCh }

// Done is closed when the tray loop has exited.
func (t *Tray) Done() <-chan struct{} { return t.quitCh }

// Run starts the tray event loop. It blocks and, on macOS, must be called
// from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

func (t *Tray) onExit() {
	t.quit.Do(func() { close(t.quitCh) })
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(icon())

	t.mu.Lock()
	status := t.status
	if status == "" {
		status = "starting"
	}
	t.line = systray.AddMenuItem(status, "")
	t.line.Disable()
	systray.AddSeparator()

	for _, mi := range t.items {
		if mi == nil {
			systray.AddSeparator()
			continue
		}
		if mi.Checkable {
			mi.item = systray.AddMenuItemCheckbox(mi.Title, "", mi.Checked)
		} else {
			mi.item = systray.AddMenuItem(mi.Title, "")
		}
		if mi.Callback != nil {
			go t.watch(mi)
		}
	}
	t.mu.Unlock()
	close(t.readyCh)
}

func (t *Tray) watch(mi *MenuItem) {
	for {
		select {
		case <-mi.item.ClickedCh:
			mi.Callback()
		case <-t.quitCh:
			return
		}
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

const iconSize = 16

// icon builds a 16x16 32-bit ICO showing a key cap outline.
func icon() []byte {
	const (
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = iconSize * iconSize * 4
		maskLen   = iconSize * 4 // 1bpp rows padded to 32 bits
		imageLen  = dibLen + pixelLen + maskLen
	)
	buf := make([]byte, headerLen+imageLen)
	le := binary.LittleEndian

	// ICONDIR
	le.PutUint16(buf[2:], 1) // type: icon
	le.PutUint16(buf[4:], 1) // count
	// ICONDIRENTRY
	buf[6], buf[7] = iconSize, iconSize
	le.PutUint16(buf[10:], 1)  // planes
	le.PutUint16(buf[12:], 32) // bpp
	le.PutUint32(buf[14:], imageLen)
	le.PutUint32(buf[18:], headerLen)

	// BITMAPINFOHEADER; height counts the XOR and AND masks
	dib := buf[headerLen:]
	le.PutUint32(dib[0:], dibLen)
	le.PutUint32(dib[4:], iconSize)
	le.PutUint32(dib[8:], iconSize*2)
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelLen)

	px := dib[dibLen:]
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			edge := x == 2 || x == iconSize-3 || y == 3 || y == iconSize-4
			inside := x >= 2 && x <= iconSize-3 && y >= 3 && y <= iconSize-4
			if !inside || !edge {
				continue
			}
			// rows are stored bottom-up, BGRA
			o := ((iconSize-1-y)*iconSize + x) * 4
			px[o], px[o+1], px[o+2], px[o+3] = 0xf0, 0xf0, 0xf0, 0xff
		}
	}
	return buf
}
