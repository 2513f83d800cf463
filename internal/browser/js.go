package browser

// domHelpersJS is shared by every probe. selectorOf returns a selector that is
// unique in the document when it is computed.
const domHelpersJS = `
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	const clip = (s, n) => { s = norm(s); return s.length > n ? s.slice(0, n) : s; };
	const esc = s => (window.CSS && CSS.escape) ? CSS.escape(s) : String(s).replace(/[^a-zA-Z0-9_-]/g, '\\$&');
	const unique = sel => { try { return document.querySelectorAll(sel).length === 1; } catch (e) { return false; } };
	function selectorOf(el) {
		if (el === document.body) return 'body';
		if (el === document.documentElement) return 'html';
		const tag = el.tagName.toLowerCase();
		if (el.id && unique('#' + esc(el.id))) return '#' + esc(el.id);
		for (const attr of ['data-testid', 'data-test', 'name', 'aria-label']) {
			const v = el.getAttribute(attr);
			if (v) {
				const s = tag + '[' + attr + '="' + v.replace(/"/g, '\\"') + '"]';
				if (unique(s)) return s;
			}
		}
		if (typeof el.className === 'string') {
			const cls = el.className.trim().split(/\s+/).filter(c => /^[A-Za-z_][\w-]*$/.test(c)).slice(0, 2);
			if (cls.length) {
				const s = tag + '.' + cls.join('.');
				if (unique(s)) return s;
			}
		}
		const parent = el.parentElement;
		if (!parent) return tag;
		const same = Array.from(parent.children).filter(c => c.tagName === el.tagName);
		const part = same.length > 1 ? tag + ':nth-of-type(' + (same.indexOf(el) + 1) + ')' : tag;
		return selectorOf(parent) + ' > ' + part;
	}
	function visible(el) {
		if (el.closest('[hidden], [aria-hidden="true"]')) return false;
		const st = getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	}
	function labelOf(el) {
		const aria = el.getAttribute('aria-label');
		if (aria) return norm(aria);
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const t = by.split(/\s+/).map(id => document.getElementById(id)).filter(Boolean).map(n => n.innerText).join(' ');
			if (norm(t)) return clip(t, 80);
		}
		if (el.id) {
			const l = document.querySelector('label[for="' + el.id.replace(/"/g, '\\"') + '"]');
			if (l) return clip(l.innerText, 80);
		}
		const wrap = el.closest('label');
		if (wrap) return clip(wrap.innerText, 80);
		return norm(el.getAttribute('title'));
	}
	function headingOf(el) {
		const aria = el.getAttribute('aria-label');
		if (aria) return norm(aria);
		const h = el.querySelector('h1, h2, h3, h4, h5, legend, caption, [role="heading"]');
		if (h) return clip(h.innerText, 80);
		const prev = el.previousElementSibling;
		if (prev && /^H[1-6]$/.test(prev.tagName)) return clip(prev.innerText, 80);
		return '';
	}
	const closeRe = /^(x|×|✕|✖)$|\b(close|cancel|dismiss)\b/i;
	const isClose = el => closeRe.test(norm(el.getAttribute('aria-label') || el.innerText || el.value || '')) ||
		el.hasAttribute('data-dismiss') || el.hasAttribute('data-bs-dismiss') ||
		el.classList.contains('close') || el.classList.contains('btn-close');
	const overlaySelector = 'dialog[open], [role="dialog"], [role="alertdialog"], [aria-modal="true"], .modal.show';
	function topOverlay() {
		let top = null;
		for (const el of document.querySelectorAll(overlaySelector)) {
			if (visible(el)) top = el;
		}
		return top;
	}
`

// overlayJS returns the topmost visible dialog or null.
const overlayJS = `() => {` + domHelpersJS + `
	const el = topOverlay();
	if (!el) return null;
	return {selector: selectorOf(el), category: 'overlay', tag: el.tagName.toLowerCase(),
		role: el.getAttribute('role') || '', text: headingOf(el) || clip(el.innerText, 80)};
}`

// snapshotJS collects collections, forms, control groups, controls and
// clickables under an optional scope selector.
const snapshotJS = `(scope, limit) => {` + domHelpersJS + `
	let root = document.body;
	if (scope) {
		root = document.querySelector(scope);
		if (!root) return {url: location.href, title: document.title, elements: [], missing: true};
	}
	const out = [];
	const emit = rec => { if (out.length < limit) out.push(rec); };
	const within = sel => Array.from(root.querySelectorAll(sel)).filter(visible);
	const formSel = 'form, [role="form"], [role="search"]';
	const searchRe = /search|find|filter|query/i;
	const searchy = el => searchRe.test([el.getAttribute('type'), el.getAttribute('name'), el.getAttribute('placeholder'),
		el.getAttribute('aria-label'), el.getAttribute('role'), el.id].join(' '));

	const ov = topOverlay();
	const overlay = ov ? {selector: selectorOf(ov), category: 'overlay', tag: ov.tagName.toLowerCase(),
		role: ov.getAttribute('role') || '', text: headingOf(ov) || clip(ov.innerText, 80)} : null;

	// Collections.
	const seenColl = new Set();
	const coll = (el, shape, items) => {
		if (seenColl.has(el) || items < 2) return;
		seenColl.add(el);
		emit({selector: selectorOf(el), category: 'collection', tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '', shape: shape, items: items, label: headingOf(el)});
	};
	for (const t of within('table, [role="table"], [role="grid"]')) {
		const rows = t.querySelectorAll('tbody tr, [role="row"]').length;
		coll(t, t.getAttribute('role') === 'grid' ? 'grid' : 'table', rows);
	}
	for (const l of within('ul, ol, [role="list"], [role="feed"]')) {
		if (l.closest('nav, header, footer, [role="navigation"], [role="menu"], [role="tablist"]')) continue;
		coll(l, 'list', l.querySelectorAll(':scope > li, :scope > [role="listitem"], :scope > article').length);
	}
	for (const c of within('div, section, main')) {
		const kids = Array.from(c.children).filter(k => typeof k.className === 'string' && k.className.trim());
		if (kids.length < 3) continue;
		const sig = k => k.tagName + '.' + k.className.trim().split(/\s+/)[0];
		const counts = {};
		kids.forEach(k => { counts[sig(k)] = (counts[sig(k)] || 0) + 1; });
		const [best, n] = Object.entries(counts).sort((a, b) => b[1] - a[1])[0];
		if (n < 3) continue;
		const shape = /card/i.test(best) ? 'card' : (getComputedStyle(c).display === 'grid' ? 'grid' : 'list');
		coll(c, shape, n);
	}

	// Forms.
	for (const f of within(formSel)) {
		const submit = f.querySelector('button[type="submit"], input[type="submit"], button:not([type])');
		emit({selector: selectorOf(f), category: 'form', tag: f.tagName.toLowerCase(), role: f.getAttribute('role') || '',
			label: headingOf(f), text: submit ? clip(submit.innerText || submit.value, 60) : '',
			action: f.getAttribute('action') || '', search: f.getAttribute('role') === 'search' || searchy(f),
			items: f.querySelectorAll('input, select, textarea').length});
	}

	// Controls. Radios sharing a name collapse into one group.
	const controlSel = 'input:not([type="hidden"]):not([type="button"]):not([type="reset"]):not([type="image"]), textarea, select, ' +
		'button[type="submit"], form button:not([type]), [role="textbox"], [role="combobox"], [role="checkbox"], [role="switch"], [contenteditable="true"]';
	const radios = new Set();
	const orphans = [];
	for (const el of within(controlSel)) {
		const form = el.closest(formSel);
		const tag = el.tagName.toLowerCase();
		const deflt = tag === 'input' ? 'text' : (tag === 'button' ? 'submit' : '');
		const type = (el.getAttribute('type') || deflt).toLowerCase();
		const submit = type === 'submit';
		const rec = {selector: selectorOf(el), category: 'control', tag: tag, role: el.getAttribute('role') || '', type: type,
			label: labelOf(el), placeholder: norm(el.getAttribute('placeholder')),
			required: el.required || el.getAttribute('aria-required') === 'true',
			form: form ? selectorOf(form) : '', search: searchy(el), submit: submit, close: isClose(el)};
		if (submit) rec.text = clip(el.innerText || el.value, 60);
		if (tag === 'select') rec.options = Array.from(el.options).map(o => norm(o.text)).filter(Boolean).slice(0, 20);
		if (type === 'radio' && el.name) {
			if (radios.has(el.name)) continue;
			radios.add(el.name);
			const group = Array.from(document.querySelectorAll('input[type="radio"][name="' + el.name.replace(/"/g, '\\"') + '"]'));
			rec.options = group.map(r => labelOf(r) || r.value).filter(Boolean).slice(0, 20);
			const fs = el.closest('fieldset');
			const legend = fs && fs.querySelector('legend');
			if (legend) rec.label = clip(legend.innerText, 80);
		}
		emit(rec);
		if (!form && !submit) orphans.push(el);
	}

	// Groups of controls outside forms: the nearest ancestor holding a button or several controls.
	const seenGroup = new Set();
	for (const el of orphans) {
		let g = el.parentElement;
		while (g && g !== root && g !== document.body) {
			if (g.querySelector('button, [role="button"]') || g.querySelectorAll(controlSel).length > 1) break;
			g = g.parentElement;
		}
		if (!g || g === document.body || seenGroup.has(g)) continue;
		seenGroup.add(g);
		emit({selector: selectorOf(g), category: 'group', tag: g.tagName.toLowerCase(), label: headingOf(g),
			search: searchy(el), items: g.querySelectorAll(controlSel).length});
	}

	// Clickables.
	const clickSel = 'a[href], button:not([type="submit"]), [role="button"], [role="link"], [role="menuitem"], [role="tab"], ' +
		'summary, [onclick], div[tabindex]:not([tabindex="-1"]), span[tabindex]:not([tabindex="-1"])';
	for (const el of within(clickSel)) {
		if (el.tagName === 'BUTTON' && el.closest('form') && !el.getAttribute('type')) continue;
		emit({selector: selectorOf(el), category: 'clickable', tag: el.tagName.toLowerCase(), role: el.getAttribute('role') || '',
			text: clip(el.getAttribute('aria-label') || el.innerText || el.getAttribute('title'), 80),
			href: el.getAttribute('href') || '', close: isClose(el)});
	}

	return {url: location.href, title: document.title, overlay: overlay, elements: out};
}`

// domTreeJS returns the visible body as a label tree for outlining.
const domTreeJS = `() => {` + domHelpersJS + `
	const skip = new Set(['SCRIPT', 'STYLE', 'TEMPLATE', 'NOSCRIPT']);
	function hidden(el) {
		if (skip.has(el.tagName) || el.hasAttribute('hidden')) return true;
		if (el.getAttribute('aria-hidden') === 'true') return true;
		const st = getComputedStyle(el);
		return st.display === 'none' || st.visibility === 'hidden';
	}
	function walk(el, depth) {
		const node = {tag: el.tagName.toLowerCase(), role: el.getAttribute('role') || '',
			tabindex: el.hasAttribute('tabindex') ? el.getAttribute('tabindex') : null,
			href: el.getAttribute('href') || '', hidden: hidden(el), label: '', children: []};
		if (node.hidden || depth > 64) return node;
		const candidate = node.tag === 'a' || node.tag === 'button' || node.role || node.tabindex !== null;
		if (candidate) node.label = norm(el.getAttribute('aria-label')) || norm(el.getAttribute('title')) || clip(el.innerText, 80);
		for (const c of el.children) node.children.push(walk(c, depth + 1));
		return node;
	}
	return walk(document.body, 0);
}`
