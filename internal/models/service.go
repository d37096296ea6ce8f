package models

import "time"

type ServiceType string

const (
	ServiceBase    ServiceType = "base"
	ServiceVariant ServiceType = "variant"
	ServicePackage ServiceType = "package"
	ServiceAddon   ServiceType = "addon"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceBase, ServiceVariant, ServicePackage, ServiceAddon:
		return true
	}
	return false
}

// Service is a bookable catalog entry. Price is in minor currency units,
// Duration in minutes.
type Service struct {
	ID          int64       `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Type        ServiceType `yaml:"type" json:"type"`
	ParentID    int64       `yaml:"parent_id" json:"parent_id,omitempty"`
	Price       int64       `yaml:"price" json:"price"`
	Duration    int         `yaml:"duration" json:"duration"`
	SortOrder   int64       `yaml:"sort_order" json:"sort_order"`
	IsActive    bool        `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time   `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `yaml:"updated_at" json:"updated_at"`
}

func (s *Service) IsAddon() bool {
	return s.Type == ServiceAddon
}
