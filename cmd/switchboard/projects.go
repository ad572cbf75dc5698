package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nous-labs/switchboard/internal/registry"
)

var (
	listLimit      int
	createTemplate string
	createType     string
	createDesc     string
	createTechs    []string
	showAdvanced   bool
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project", "p"},
	Short:   "Manage the project registry",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently opened projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()

		list, err := reg.ListRecent(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No projects yet.")
			return nil
		}
		bold := color.New(color.Bold)
		for _, p := range list {
			fmt.Printf("%s  %-8s  %s\n", bold.Sprintf("%-24s", p.Name), p.Type, p.LastOpenedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()

		p, err := reg.CreateProject(cmd.Context(), registry.NewProject{
			Name:         args[0],
			Type:         registry.ProjectType(createType),
			Template:     createTemplate,
			Description:  createDesc,
			Technologies: createTechs,
		})
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("created %s (%s) at %s", p.Name, p.Type, p.Path), color.FgGreen)
		if len(p.Technologies) > 0 {
			fmt.Printf("  technologies: %s\n", strings.Join(p.Technologies, ", "))
		}
		if tmpl, ok := registry.TemplateByID(createTemplate); ok && tmpl.Command != "" {
			fmt.Printf("  scaffold with: %s\n", tmpl.Command)
		}
		return nil
	},
}

var projectsOpenCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Record that a project was opened and print its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()

		p, err := reg.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(p.Path)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a project from the registry (files are left alone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()

		if err := reg.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		printStatus("✓", "deleted "+args[0], color.FgGreen)
		return nil
	},
}

var projectsTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List project templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cyan := color.New(color.FgCyan)
		for _, t := range registry.Templates(showAdvanced) {
			fmt.Printf("%s  %s\n", cyan.Sprintf("%-11s", t.ID), t.Name)
			fmt.Printf("             %s\n", t.Description)
			fmt.Printf("             %s\n", strings.Join(t.Technologies, ", "))
		}
		return nil
	},
}

func init() {
	projectsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "maximum number of projects")

	projectsCreateCmd.Flags().StringVarP(&createTemplate, "template", "t", "", "template ID (see 'projects templates')")
	projectsCreateCmd.Flags().StringVar(&createType, "type", "", "project type when no template is given")
	projectsCreateCmd.Flags().StringVarP(&createDesc, "description", "d", "", "short description")
	projectsCreateCmd.Flags().StringSliceVar(&createTechs, "tech", nil, "technologies (comma separated)")

	projectsTemplatesCmd.Flags().BoolVarP(&showAdvanced, "all", "a", false, "include advanced templates")

	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsOpenCmd, projectsDeleteCmd, projectsTemplatesCmd)
}

func requireRegistry(cmd *cobra.Command) (registry.Registry, error) {
	reg, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open project registry: %w", err)
	}
	if reg == nil {
		return nil, fmt.Errorf("project registry is disabled (projects.driver = none)")
	}
	return reg, nil
}
