package registry

// Template is a starter layout a project can be created from. Running the
// scaffolding command is left to external tooling; the registry only records
// the resulting metadata.
type Template struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Type         ProjectType `json:"type"`
	Description  string      `json:"description"`
	Technologies []string    `json:"technologies"`
	Command      string      `json:"command"`
	Advanced     bool        `json:"advanced"`
}

var templates = []Template{
	{
		ID:           "ai-ml",
		Name:         "Python AI/ML Project",
		Type:         TypeAIML,
		Description:  "Complete AI/ML project with Jupyter notebooks, data processing, and model training",
		Technologies: []string{"Python", "Pandas", "NumPy", "Scikit-learn", "Jupyter"},
		Command:      "newai",
	},
	{
		ID:           "scraper",
		Name:         "Python Web Scraper",
		Type:         TypePython,
		Description:  "Web scraping project with BeautifulSoup, Selenium, and data export",
		Technologies: []string{"Python", "BeautifulSoup", "Selenium", "Pandas"},
		Command:      "newscraper",
	},
	{
		ID:           "fastapi",
		Name:         "FastAPI Backend",
		Type:         TypeAPI,
		Description:  "Modern REST API with FastAPI, SQLAlchemy, and automatic documentation",
		Technologies: []string{"Python", "FastAPI", "SQLAlchemy", "Pydantic"},
		Command:      "newapi",
		Advanced:     true,
	},
	{
		ID:           "react",
		Name:         "React Web App",
		Type:         TypeWebApp,
		Description:  "Modern React application with TypeScript, Tailwind CSS, and Vite",
		Technologies: []string{"React", "TypeScript", "Tailwind CSS", "Vite"},
		Command:      "newreact",
		Advanced:     true,
	},
	{
		ID:           "automation",
		Name:         "Python Automation Script",
		Type:         TypePython,
		Description:  "Task automation with file handling, email, and scheduling",
		Technologies: []string{"Python", "Schedule", "SMTP", "OS"},
		Command:      "newautomation",
	},
	{
		ID:           "wpf",
		Name:         "Desktop WPF App",
		Type:         TypeDesktop,
		Description:  "WPF application with Material Design and MVVM pattern",
		Technologies: []string{"C#", "WPF", "Material Design", "MVVM"},
		Command:      "newwpf",
		Advanced:     true,
	},
}

// Templates returns the template catalog in display order.
func Templates(includeAdvanced bool) []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		if !includeAdvanced && t.Advanced {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TemplateByID looks up a template.
func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
