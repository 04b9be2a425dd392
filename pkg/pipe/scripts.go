package pipe

import "iter"

// The error trap runs a script and keeps its failure from stopping the
// scripts queued after it. Errors go to the console and to a global
// logError hook when the page defines one.
const (
	trapOpen  = "try { "
	trapClose = " } catch (ex) { if (typeof console == 'object') { console.log(ex); } " +
		"if (typeof logError == 'function') { if (typeof ex == 'object') { " +
		"logError(ex.name + ': ' + ex.message, ex.fileName, ex.lineNumber, ex.stack); } " +
		"else { logError(ex, 'Exception', 0); } } }"
)

// WrapScript wraps code in the error-trapping harness.
func WrapScript(code string) string {
	return trapOpen + code + trapClose
}

// ScriptElement returns a complete inline script element for source.
func ScriptElement(source string) string {
	return "<script type=\"text/javascript\">\n//<![CDATA[\n" + source + "\n//]]>\n</script>"
}

// ScriptQueue collects inline scripts of synchronously rendered pagelets.
// They are emitted at the end of the document so that they run after all
// content is in the DOM.
type ScriptQueue struct {
	items []string
}

// Push wraps code and appends it to the queue.
func (q *ScriptQueue) Push(code string) {
	q.items = append(q.items, WrapScript(code))
}

// Len returns the number of queued scripts.
func (q *ScriptQueue) Len() int {
	return len(q.items)
}

// Drain empties the queue and returns the wrapped scripts in FIFO order.
// The sequence can be ranged over once.
func (q *ScriptQueue) Drain() iter.Seq[string] {
	items := q.items
	q.items = nil
	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, s := range items {
			if !yield(s) {
				return
			}
		}
	}
}
