package output

import "session-agent/internal/domain/entity"

type LocatorRegistry interface {
	Register(locator entity.FieldLocator)
	Get(field entity.FieldName) (entity.FieldLocator, bool)
	All() []entity.FieldLocator
}
