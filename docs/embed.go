package docs

import _ "embed"

var (
	//go:embed getting-started.md
	GettingStartedMD string

	//go:embed stacks.md
	StacksMD string

	//go:embed services.md
	ServicesMD string

	//go:embed policy.md
	PolicyMD string

	//go:embed credentials.md
	CredentialsMD string
)
