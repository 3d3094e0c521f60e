package configuration

// ConfigurationService hands out copies of the service configuration.
type ConfigurationService interface {
	GetConfiguration() Configuration
	Update(updatedConfig Configuration) error
	Path() string
}
