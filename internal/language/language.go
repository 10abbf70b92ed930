// Package language lists the display languages a guest can pick.
package language

import (
	"strings"
	"sync"
)

// Original means "show messages as they were written". It never triggers translation.
const Original = "original"

type Language struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Flag string `json:"flag,omitempty"`
}

var builtin = []Language{
	{Name: "Original", Code: Original},
	{Name: "Hindi", Code: "hi", Flag: "🇮🇳"},
	{Name: "Tamil", Code: "ta", Flag: "🇮🇳"},
	{Name: "Bengali", Code: "bn", Flag: "🇮🇳"},
	{Name: "Telugu", Code: "te", Flag: "🇮🇳"},
	{Name: "Marathi", Code: "mr", Flag: "🇮🇳"},
	{Name: "Gujarati", Code: "gu", Flag: "🇮🇳"},
	{Name: "Kannada", Code: "kn", Flag: "🇮🇳"},
	{Name: "English", Code: "en", Flag: "🇬🇧"},
	{Name: "Spanish", Code: "es", Flag: "🇪🇸"},
	{Name: "Chinese", Code: "zh", Flag: "🇨🇳"},
}

// Registry is the selectable language list. Custom entries added at runtime
// are shared by every session of the process.
type Registry struct {
	mu    sync.RWMutex
	langs []Language
}

func NewRegistry() *Registry {
	return &Registry{langs: append([]Language(nil), builtin...)}
}

func (r *Registry) All() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Language(nil), r.langs...)
}

// Add registers a custom language. Returns false when the code is taken.
func (r *Registry) Add(name, code string) bool {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.langs {
		if strings.EqualFold(l.Code, code) {
			return false
		}
	}
	r.langs = append(r.langs, Language{Name: name, Code: code, Flag: "🌐"})
	return true
}

func (r *Registry) Lookup(code string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.langs {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return Language{}, false
}

// Name is what the translation prompt asks for. Unknown codes pass through.
func (r *Registry) Name(code string) string {
	if l, ok := r.Lookup(code); ok {
		return l.Name
	}
	return code
}
