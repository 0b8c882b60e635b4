package core

// Environment selects runtime behavior: log format and verbosity.
type Environment string

const (
	DevelopmentEnv Environment = "development"
	ProductionEnv  Environment = "production"
)

func (e Environment) IsDevelopment() bool { return e == DevelopmentEnv }

func (e Environment) IsProduction() bool { return e == ProductionEnv }
