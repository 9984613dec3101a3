package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed hydra_config.schema.json
var skeletonFS embed.FS

var (
	skeleton     Schema
	skeletonOnce sync.Once
	skeletonErr  error
)

func loadSkeleton() (Schema, error) {
	skeletonOnce.Do(func() {
		data, err := skeletonFS.ReadFile("hydra_config.schema.json")
		if err != nil {
			skeletonErr = fmt.Errorf("failed to read embedded schema: %w", err)
			return
		}
		if err := json.Unmarshal(data, &skeleton); err != nil {
			skeletonErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			skeleton = nil
		}
	})
	return skeleton, skeletonErr
}

// Base returns a fresh copy of the generic schema every config file
// satisfies: an open object that may carry a defaults list and the
// instantiation keys (_target_, _partial_, ...).
func Base() Schema {
	s, err := loadSkeleton()
	if err != nil {
		// The skeleton is compiled into the binary.
		panic(err)
	}
	return Clone(s)
}

// Partial returns the permissive schema written when generation fails.
func Partial(prettyPath string, cause error) Schema {
	s := Base()
	s[KeyAdditionalProperties] = true
	s[KeyTitle] = "Partial schema for " + prettyPath
	s[KeyDescription] = fmt.Sprintf("(errors occurred while trying to create the schema from the signature)\n%v", cause)
	return s
}
