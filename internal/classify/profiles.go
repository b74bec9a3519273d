// File: internal/classify/profiles.go
// Brief: Signal profiles for every stack the classifier can score.

package classify

// Profile declares the signals that identify one stack. RequiredDeps gate
// the match entirely; the other signal groups only raise confidence.
type Profile struct {
	StackKey       string
	BaseConfidence float64
	RequiredDeps   []string
	OptionalDeps   []string
	FilePatterns   []string
	ConfigFiles    []string
}

// profiles is evaluated in declaration order, which doubles as the
// deterministic tie-break when two stacks score identically.
var profiles = []Profile{
	{
		StackKey:       "nextjs",
		BaseConfidence: 0.92,
		RequiredDeps:   []string{"next"},
		OptionalDeps:   []string{"react", "react-dom", "typescript"},
		FilePatterns:   []string{"*.tsx", "*.jsx"},
		ConfigFiles:    []string{"next.config.js", "next.config.mjs", "next.config.ts"},
	},
	{
		StackKey:       "laravel",
		BaseConfidence: 0.90,
		RequiredDeps:   []string{"laravel/framework"},
		OptionalDeps:   []string{"livewire/livewire", "inertiajs/inertia-laravel", "laravel/sanctum", "laravel/horizon"},
		FilePatterns:   []string{"artisan"},
		ConfigFiles:    []string{"vite.config.js", "webpack.mix.js"},
	},
	{
		StackKey:       "django",
		BaseConfidence: 0.88,
		RequiredDeps:   []string{"django"},
		OptionalDeps:   []string{"djangorestframework", "gunicorn", "celery", "psycopg2-binary"},
		FilePatterns:   []string{"manage.py", "wsgi.py"},
		ConfigFiles:    []string{"requirements.txt", "pyproject.toml"},
	},
	{
		StackKey:       "rails",
		BaseConfidence: 0.87,
		RequiredDeps:   []string{"rails"},
		OptionalDeps:   []string{"puma", "pg", "sidekiq", "redis"},
		FilePatterns:   []string{"config.ru", "Rakefile"},
		ConfigFiles:    []string{"config/database.yml"},
	},
	{
		StackKey:       "springboot",
		BaseConfidence: 0.86,
		RequiredDeps:   []string{"spring-boot-starter-web"},
		OptionalDeps:   []string{"spring-boot-starter-data-jpa", "spring-boot-starter-actuator", "spring-boot-starter-security"},
		FilePatterns:   []string{"mvnw", "*.java"},
		ConfigFiles:    []string{"src/main/resources/application.yml", "src/main/resources/application.properties"},
	},
	{
		StackKey:       "fastapi",
		BaseConfidence: 0.84,
		RequiredDeps:   []string{"fastapi"},
		OptionalDeps:   []string{"uvicorn", "pydantic", "sqlalchemy"},
		FilePatterns:   []string{"main.py"},
		ConfigFiles:    []string{"pyproject.toml"},
	},
	{
		StackKey:       "flask",
		BaseConfidence: 0.82,
		RequiredDeps:   []string{"flask"},
		OptionalDeps:   []string{"gunicorn", "flask-sqlalchemy", "flask-cors"},
		FilePatterns:   []string{"app.py", "wsgi.py"},
		ConfigFiles:    []string{"requirements.txt"},
	},
	{
		StackKey:       "express",
		BaseConfidence: 0.80,
		RequiredDeps:   []string{"express"},
		OptionalDeps:   []string{"cors", "morgan", "body-parser", "helmet"},
		FilePatterns:   []string{"server.js", "app.js"},
		ConfigFiles:    []string{"ecosystem.config.js", "Procfile"},
	},
	{
		StackKey:       "react-spa",
		BaseConfidence: 0.78,
		RequiredDeps:   []string{"react"},
		OptionalDeps:   []string{"react-dom", "react-router-dom", "axios"},
		FilePatterns:   []string{"*.tsx", "*.jsx"},
		ConfigFiles:    []string{"vite.config.js", "vite.config.ts", "craco.config.js"},
	},
	{
		StackKey:       "vue-spa",
		BaseConfidence: 0.77,
		RequiredDeps:   []string{"vue"},
		OptionalDeps:   []string{"vue-router", "pinia", "vuex"},
		FilePatterns:   []string{"*.vue"},
		ConfigFiles:    []string{"vite.config.js", "vue.config.js"},
	},
	{
		StackKey:       "gin",
		BaseConfidence: 0.76,
		RequiredDeps:   []string{"github.com/gin-gonic/gin"},
		OptionalDeps:   []string{"gorm.io/gorm", "github.com/spf13/viper"},
		FilePatterns:   []string{"main.go"},
		ConfigFiles:    []string{"go.mod"},
	},
}

// Profiles returns the scoring table in evaluation order.
func Profiles() []Profile {
	return profiles
}

// ProfileFor returns the profile registered for a stack key.
func ProfileFor(stackKey string) (Profile, bool) {
	for _, p := range profiles {
		if p.StackKey == stackKey {
			return p, true
		}
	}
	return Profile{}, false
}
