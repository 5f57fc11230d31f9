// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/url"

	"github.com/google/uuid"
)

// DefaultGlobalObject is the JavaScript global carrying page metadata.
const DefaultGlobalObject = "DiviSquadExtra"

// GlobalObject describes the metadata object printed in the footer.
type GlobalObject struct {
	Name      string
	Version   string
	AssetsURL string
	RESTURL   string
	DevMode   bool
	Extra     map[string]any
}

// Page is one request's asset output.
//
// Page owns the per-request Registry, Localization and BodyClasses. The
// Resolver behind the Registry is shared between pages.
type Page struct {
	Registry     *Registry
	Localization *Localization
	BodyClasses  *BodyClasses

	id     string
	prefix string
	global GlobalObject
	nonce  string
}

// NewPage composes a page. An empty global.Name means
// DefaultGlobalObject.
func NewPage(prefix string, registry *Registry, localization *Localization, body *BodyClasses, global GlobalObject) *Page {
	if global.Name == "" {
		global.Name = DefaultGlobalObject
	}
	return &Page{
		Registry:     registry,
		Localization: localization,
		BodyClasses:  body,
		id:           uuid.NewString(),
		prefix:       prefix,
		global:       global,
		nonce:        uuid.NewString(),
	}
}

// ID identifies the page in logs.
func (p *Page) ID() string { return p.id }

// Nonce returns the page nonce carried by the global object.
func (p *Page) Nonce() string { return p.nonce }

// Global returns the global object payload.
func (p *Page) Global() map[string]any {
	out := make(map[string]any, len(p.global.Extra)+5)
	for k, v := range p.global.Extra {
		out[k] = v
	}
	out["nonce"] = p.nonce
	out["version"] = p.global.Version
	out["assets_url"] = p.global.AssetsURL
	out["rest_url"] = p.global.RESTURL
	out["dev_mode"] = p.global.DevMode
	return out
}

// WriteHead prints the enqueued styles and header scripts. Localization
// data is printed before the first header script.
func (p *Page) WriteHead(w io.Writer) error {
	for _, a := range p.Registry.Styles() {
		if _, err := fmt.Fprintf(w, "<link rel=\"stylesheet\" id=\"%s-css\" href=\"%s\" media=\"%s\" />\n",
			html.EscapeString(a.FullHandle), html.EscapeString(versioned(a.Resolved)), html.EscapeString(a.Media)); err != nil {
			return fmt.Errorf("write style %s: %w", a.Handle, err)
		}
	}
	return p.writeScripts(w, false)
}

// WriteFooter prints the global object, any localization data not yet
// printed and the footer scripts.
func (p *Page) WriteFooter(w io.Writer) error {
	payload, err := json.Marshal(p.Global())
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.global.Name, err)
	}
	if _, err := fmt.Fprintf(w, "<script id=\"%s-extra-js\">var %s = %s;</script>\n",
		html.EscapeString(p.prefix), p.global.Name, payload); err != nil {
		return fmt.Errorf("write %s: %w", p.global.Name, err)
	}
	if _, err := p.Localization.Flush(w); err != nil {
		return err
	}
	return p.writeScripts(w, true)
}

// BodyClass returns the body class attribute value with this page's
// tokens applied.
func (p *Page) BodyClass(existing string) string {
	return p.BodyClasses.ClassAttr(existing)
}

func (p *Page) writeScripts(w io.Writer, footer bool) error {
	first := true
	for _, a := range p.Registry.Scripts() {
		if a.Args.InFooter != footer {
			continue
		}
		if first && !footer {
			if _, err := p.Localization.Flush(w); err != nil {
				return err
			}
		}
		first = false

		strategy := ""
		switch a.Args.Strategy {
		case "defer", "async":
			strategy = " " + a.Args.Strategy
		}
		if _, err := fmt.Fprintf(w, "<script src=\"%s\" id=\"%s-js\"%s></script>\n",
			html.EscapeString(versioned(a.Resolved)), html.EscapeString(a.FullHandle), strategy); err != nil {
			return fmt.Errorf("write script %s: %w", a.Handle, err)
		}
	}
	return nil
}

func versioned(r Resolved) string {
	if r.Version == "" {
		return r.URL
	}
	sep := "?"
	if u, err := url.Parse(r.URL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return r.URL + sep + "ver=" + url.QueryEscape(r.Version)
}
