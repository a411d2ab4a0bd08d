// Package siteprofile loads the replaceable description of a target site:
// its URLs, field locators and record schema.
package siteprofile

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"session-agent/internal/domain/entity"

	"github.com/titanous/json5"
)

//go:embed x.json5
var defaultProfile []byte

// Required lists the fields the login flow cannot run without.
var Required = []entity.FieldName{
	entity.FieldUsername,
	entity.FieldNextButton,
	entity.FieldPassword,
	entity.FieldLandmark,
}

func Default() entity.SiteProfile {
	p, err := Parse(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded site profile: %v", err))
	}
	return p
}

// Load reads a JSON5 profile from disk. An empty path yields the default.
func Load(path string) (entity.SiteProfile, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return entity.SiteProfile{}, fmt.Errorf("read site profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return entity.SiteProfile{}, fmt.Errorf("site profile %s: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte) (entity.SiteProfile, error) {
	var p entity.SiteProfile
	if err := json5.Unmarshal(data, &p); err != nil {
		return entity.SiteProfile{}, fmt.Errorf("decode: %w", err)
	}
	if err := Validate(p); err != nil {
		return entity.SiteProfile{}, err
	}
	return p, nil
}

func Validate(p entity.SiteProfile) error {
	var errs []error
	for name, raw := range map[string]string{"loginUrl": p.LoginURL, "homeUrl": p.HomeURL} {
		if !validURL(raw) {
			errs = append(errs, fmt.Errorf("%s: %w: %q", name, entity.ErrInvalidURL, raw))
		}
	}
	if p.SearchURL != "" {
		if strings.Count(p.SearchURL, "%s") != 1 {
			errs = append(errs, fmt.Errorf("searchUrl: want exactly one %%s in %q", p.SearchURL))
		} else if raw, _ := p.SearchTarget("q"); !validURL(raw) {
			errs = append(errs, fmt.Errorf("searchUrl: %w: %q", entity.ErrInvalidURL, p.SearchURL))
		}
	}
	for _, f := range Required {
		loc, ok := p.Locator(f)
		if !ok || len(loc.Strategies) == 0 {
			errs = append(errs, fmt.Errorf("locator %s: no strategies", f))
		}
	}
	for _, loc := range p.Locators {
		for i, s := range loc.Strategies {
			switch s.Kind {
			case entity.StrategyAttribute, entity.StrategyPositional:
				if s.CSS == "" {
					errs = append(errs, fmt.Errorf("locator %s strategy %d: %w: empty css", loc.Field, i, entity.ErrInvalidSelector))
				}
			case entity.StrategyRoleText:
				if s.Role == "" {
					errs = append(errs, fmt.Errorf("locator %s strategy %d: empty role", loc.Field, i))
				}
			default:
				errs = append(errs, fmt.Errorf("locator %s strategy %d: unknown kind %q", loc.Field, i, s.Kind))
			}
		}
	}
	if p.RecordSchema.Node == "" {
		errs = append(errs, errors.New("recordSchema.node is required"))
	}
	if p.RecordSchema.IDPattern != "" {
		if _, err := regexp.Compile(p.RecordSchema.IDPattern); err != nil {
			errs = append(errs, fmt.Errorf("recordSchema.idPattern: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
