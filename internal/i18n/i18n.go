package i18n

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/sunopiusme/rlguardbot/resources"
)

var state = struct {
	sync.RWMutex
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	if "en" == lang {
		return
	}

	raw, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	if err != nil {
		log.WithError(err).Errorln("cant load i18n")
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(raw, &translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
		return
	}
	state.translations[lang] = translations
	state.loaded[lang] = true
}

// GetLanguagesList returns the languages with bundled translations.
func GetLanguagesList() []string {
	langs := []string{"en"}
	entries, err := resources.FS.ReadDir("i18n")
	if err != nil {
		return langs
	}
	for _, entry := range entries {
		name := entry.Name()
		if len(name) > 4 && name[len(name)-4:] == ".yml" {
			langs = append(langs, name[:len(name)-4])
		}
	}
	return langs
}

// Get returns the translation of key for lang, falling back to the key
// itself. English strings are the keys.
func Get(key, lang string) string {
	if "en" == lang {
		return key
	}
	state.Lock()
	if !state.loaded[lang] {
		load(lang)
	}
	res, ok := state.translations[lang][key]
	state.Unlock()
	if ok {
		return res
	}
	log.Tracef(`no translation for key %q`, key)
	return key
}
