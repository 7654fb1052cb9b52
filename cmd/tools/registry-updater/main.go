// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"request-workers/pkg/registry"
)

const defaultPath = "configs/activity-registry.json"

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "export":
		cmd := flag.NewFlagSet("export", flag.ExitOnError)
		path := cmd.String("path", defaultPath, "Path to write the registry file")
		cmd.Parse(os.Args[2:])
		err = exportRegistry(*path)
		if err == nil {
			fmt.Printf("Wrote built-in registry to %s\n", *path)
		}

	case "update":
		cmd := flag.NewFlagSet("update", flag.ExitOnError)
		path := cmd.String("path", defaultPath, "Path to registry file")
		id := cmd.String("id", "", "Activity ID to update")
		field := cmd.String("field", "", "Field to update (version, description, timeout, retries)")
		value := cmd.String("value", "", "New value for the field")
		cmd.Parse(os.Args[2:])
		if *id == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			cmd.Usage()
			os.Exit(1)
		}
		err = updateActivity(*path, *id, *field, *value)
		if err == nil {
			fmt.Printf("Updated activity %s, field %s to %s\n", *id, *field, *value)
		}

	case "validate":
		cmd := flag.NewFlagSet("validate", flag.ExitOnError)
		path := cmd.String("path", defaultPath, "Path to registry file")
		cmd.Parse(os.Args[2:])
		var n int
		n, err = validateRegistry(*path)
		if err == nil {
			fmt.Printf("Registry validation passed. Found %d activities.\n", n)
		}

	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func exportRegistry(path string) error {
	reg := registry.Default()
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveRegistry(reg, path)
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	var activity *registry.Activity
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			activity = &reg.Activities[i]
			break
		}
	}
	if activity == nil {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "version":
		activity.Version = value
	case "description":
		activity.Description = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		activity.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		activity.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveRegistry(reg, path)
}

func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	return len(reg.Activities), nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the built-in activity registry to a file
  update   Update an existing activity's field
  validate Validate a registry file
  help     Show this help message

Examples:
  registry-updater export -path configs/activity-registry.json
  registry-updater update -id notify-request-created -field retries -value 5
  registry-updater validate -path configs/activity-registry.json`)
}
