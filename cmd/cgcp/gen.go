package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/elektrokombinacija/cgcp-planner/internal/instance"
)

var (
	genParams     = instance.DefaultGenParams()
	genParamsFile string
	genOutput     string

	genCmd = &cobra.Command{
		Use:   "gen",
		Short: "Generate a random instance file",
		Args:  cobra.NoArgs,
		RunE:  runGen,
	}
)

func init() {
	f := genCmd.Flags()
	f.StringVar(&genParamsFile, "params", "", "YAML generator parameters, flags override")
	f.Int64Var(&genParams.Seed, "seed", genParams.Seed, "random seed")
	f.IntVar(&genParams.Agents, "agents", genParams.Agents, "number of agents")
	f.IntVar(&genParams.States, "states", genParams.States, "states per agent")
	f.IntVar(&genParams.Actions, "actions", genParams.Actions, "actions per agent, action 0 is free")
	f.IntVar(&genParams.Horizon, "horizon", genParams.Horizon, "number of epochs")
	f.IntVar(&genParams.Resources, "resources", genParams.Resources, "number of resources")
	f.IntVar(&genParams.Branching, "branching", genParams.Branching, "successors per transition")
	f.StringVar(&genParams.Type, "type", genParams.Type, "budget or instantaneous")
	f.Float64Var(&genParams.LimitFraction, "limit-fraction", genParams.LimitFraction, "limit as a fraction of worst-case consumption")
	f.IntVar(&genParams.Observations, "observations", genParams.Observations, "observations per agent, 0 for a fully observable instance")
	f.Float64Var(&genParams.ObsNoise, "obs-noise", genParams.ObsNoise, "probability of a wrong observation")
	f.StringVarP(&genOutput, "output", "o", "", "output file (stdout when empty)")
}

// paramFlags copies a flag-bound field of genParams into p.
var paramFlags = map[string]func(p *instance.GenParams){
	"seed":           func(p *instance.GenParams) { p.Seed = genParams.Seed },
	"agents":         func(p *instance.GenParams) { p.Agents = genParams.Agents },
	"states":         func(p *instance.GenParams) { p.States = genParams.States },
	"actions":        func(p *instance.GenParams) { p.Actions = genParams.Actions },
	"horizon":        func(p *instance.GenParams) { p.Horizon = genParams.Horizon },
	"resources":      func(p *instance.GenParams) { p.Resources = genParams.Resources },
	"branching":      func(p *instance.GenParams) { p.Branching = genParams.Branching },
	"type":           func(p *instance.GenParams) { p.Type = genParams.Type },
	"limit-fraction": func(p *instance.GenParams) { p.LimitFraction = genParams.LimitFraction },
	"observations":   func(p *instance.GenParams) { p.Observations = genParams.Observations },
	"obs-noise":      func(p *instance.GenParams) { p.ObsNoise = genParams.ObsNoise },
}

func runGen(cmd *cobra.Command, args []string) error {
	p := genParams
	if genParamsFile != "" {
		raw, err := os.ReadFile(genParamsFile)
		if err != nil {
			return err
		}
		p = instance.DefaultGenParams()
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%s: %w", genParamsFile, err)
		}
		// explicit flags win over the file
		for name, set := range paramFlags {
			if cmd.Flags().Changed(name) {
				set(&p)
			}
		}
	}
	f, err := instance.Generate(p)
	if err != nil {
		return err
	}
	if genOutput != "" {
		if err := f.Save(genOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "generated %s (%d agents) -> %s\n", f.Name, len(f.Agents), genOutput)
		return nil
	}
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
