package browser

import (
	"encoding/json"
	"fmt"
)

// hideWebdriverScript removes the navigator.webdriver automation flag.
const hideWebdriverScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
})()`

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func removeScript(selector string) string {
	return fmt.Sprintf(`(() => {
	var els = document.querySelectorAll(%s);
	for (var i = 0; i < els.length; i++) {
		els[i].parentNode.removeChild(els[i]);
	}
	return els.length;
})()`, jsString(selector))
}

func textsScript(selector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.textContent.trim())`, jsString(selector))
}

// attributeScript yields {found, has, value}. Like collectScript, href and
// src come back resolved against the document URL.
func attributeScript(selector, name string) string {
	return fmt.Sprintf(`(() => {
	var name = %s;
	var el = document.querySelector(%s);
	if (!el) return {found: false, has: false, value: ""};
	var v = el.getAttribute(name);
	if (v === null) return {found: true, has: false, value: ""};
	if ((name === 'href' || name === 'src') && el[name]) v = el[name];
	return {found: true, has: true, value: v};
})()`, jsString(name), jsString(selector))
}

func clickNthScript(selector string, n int) string {
	return fmt.Sprintf(`(() => {
	var els = document.querySelectorAll(%s);
	if (%d >= els.length) return false;
	els[%d].click();
	return true;
})()`, jsString(selector), n, n)
}

// collectScript reads fields from every item; href and src attributes are
// read as resolved properties so relative links come back absolute.
func collectScript(itemSelector string, fields []Field) string {
	fieldsJSON, _ := json.Marshal(fields)
	return fmt.Sprintf(`(() => {
	var fields = %s;
	return Array.from(document.querySelectorAll(%s)).map(item => {
		var rec = {};
		fields.forEach(f => {
			var el = item.querySelector(f.selector);
			if (!el) return;
			if (!f.attr) {
				rec[f.name] = el.textContent.trim();
				return;
			}
			if (!el.hasAttribute(f.attr)) return;
			rec[f.name] = (f.attr === 'href' || f.attr === 'src') && el[f.attr] ? el[f.attr] : el.getAttribute(f.attr);
		});
		return rec;
	});
})()`, fieldsJSON, jsString(itemSelector))
}
