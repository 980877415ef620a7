package bridge

// ContextMenuScript forwards right clicks to the nativeContext bridge.
// Only primitives cross the boundary.
const ContextMenuScript = `document.addEventListener('contextmenu', function(e) {
  e.preventDefault();
  var el = e.target || {};
  var tag = el.tagName ? String(el.tagName).toLowerCase() : '';
  var src = el.src ? String(el.src) : '';
  var href = el.href ? String(el.href) : '';
  nativeContext.showContextMenu(tag, src, href, Number(e.pageX) || 0, Number(e.pageY) || 0);
}, { capture: true });`

// Registrar receives the bridge and its script. *injection.Registry
// satisfies it.
type Registrar interface {
	AddScript(script string) error
	AddBridge(name string, obj any) error
}

// Register binds c as nativeContext and adds ContextMenuScript, bridge
// first so the script finds it.
func Register(r Registrar, c *ContextMenu) error {
	if err := r.AddBridge(ContextMenuBridgeName, c); err != nil {
		return err
	}
	return r.AddScript(ContextMenuScript)
}
