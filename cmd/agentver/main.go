package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/emenda-labs/agentver/core/breaking"
	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/cli"
	"github.com/emenda-labs/agentver/core/depgraph"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/versioning"
	"github.com/emenda-labs/agentver/pkg/gomod"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var globals cli.GlobalOptions

	root := cli.NewRootCmd(version, &globals)
	root.AddCommand(
		cli.NewVersionCmd(versionHandlers(&globals)),
		cli.NewDepsCmd(depsHandlers(&globals)),
		cli.NewImpactCmd(func(ctx context.Context, opts cli.VersionTargetOptions) error {
			return withApp(&globals, func(a *app) error {
				report, err := a.analyzer.Analyze(ctx, opts.Agent, opts.Version)
				if err != nil {
					return err
				}
				return a.printImpact(report)
			})
		}),
		cli.NewDetectCmd(func(ctx context.Context, opts cli.DetectOptions) error {
			return withApp(&globals, func(a *app) error {
				return runDetect(ctx, a, opts)
			})
		}),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionHandlers(globals *cli.GlobalOptions) cli.VersionRunFuncs {
	return cli.VersionRunFuncs{
		Create: func(ctx context.Context, opts cli.VersionCreateOptions) error {
			return withApp(globals, func(a *app) error {
				req := versioning.CreateRequest{
					Agent:           opts.Agent,
					ChangeType:      versioning.ChangeType(strings.ToUpper(opts.ChangeType)),
					Description:     opts.Description,
					BreakingChanges: opts.BreakingChanges,
				}
				if opts.Detect {
					if err := a.detectAgainstCurrent(ctx, &req); err != nil {
						return err
					}
				}
				rec, err := a.manager.CreateVersion(ctx, req)
				if err != nil {
					return err
				}
				return a.printRecord(rec)
			})
		},
		Rollback: func(ctx context.Context, opts cli.VersionRollbackOptions) error {
			return withApp(globals, func(a *app) error {
				res, err := a.manager.Rollback(ctx, opts.Agent, opts.Version, opts.Force)
				if err != nil {
					return err
				}
				if err := a.printRollback(res, true); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("rollback of %s to %s refused", opts.Agent, opts.Version)
				}
				return nil
			})
		},
		Assess: func(ctx context.Context, opts cli.VersionTargetOptions) error {
			return withApp(globals, func(a *app) error {
				res, err := a.manager.AssessRollback(ctx, opts.Agent, opts.Version)
				if err != nil {
					return err
				}
				return a.printRollback(res, false)
			})
		},
		History: func(ctx context.Context, agent string) error {
			return withApp(globals, func(a *app) error {
				h, err := a.manager.History(ctx, agent)
				if err != nil {
					return err
				}
				return a.printHistory(h)
			})
		},
		Show: func(ctx context.Context, opts cli.VersionTargetOptions) error {
			return withApp(globals, func(a *app) error {
				rec, err := a.manager.Version(ctx, opts.Agent, opts.Version)
				if err != nil {
					return err
				}
				return a.printRecord(rec)
			})
		},
		Guide: func(ctx context.Context, opts cli.VersionTargetOptions) error {
			return withApp(globals, func(a *app) error {
				guide, err := a.manager.MigrationGuide(ctx, opts.Agent, opts.Version)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]string{"agent": opts.Agent, "version": opts.Version, "guide": guide})
				}
				fmt.Fprint(a.out, guide)
				return nil
			})
		},
		Agents: func(ctx context.Context) error {
			return withApp(globals, func(a *app) error {
				agents, err := a.manager.Agents(ctx)
				if err != nil {
					return err
				}
				return a.printList(agents)
			})
		},
	}
}

// detectAgainstCurrent compares the workspace code with the agent's
// current version and attaches the report to req. Agents without history
// have nothing to compare against.
func (a *app) detectAgainstCurrent(ctx context.Context, req *versioning.CreateRequest) error {
	newSnap, err := a.workspace.Snapshot(ctx, req.Agent)
	if err != nil {
		return err
	}
	req.Snapshot = &newSnap

	current, err := a.manager.CurrentVersion(ctx, req.Agent)
	if errors.Is(err, versioning.ErrAgentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	oldSnap, err := a.manager.Snapshot(ctx, req.Agent, current)
	if err != nil {
		return err
	}

	report, err := a.detector.DetectSnapshots(ctx, oldSnap, newSnap)
	if err != nil {
		return err
	}
	a.recordDetection(report)
	if report.ParseError != nil {
		a.logger.Warn("breaking change detection skipped", "agent", req.Agent, "file", report.ParseError.File,
			"line", report.ParseError.Line, "error", report.ParseError.Message)
		return nil
	}
	if report.HasBreakingChanges && req.ChangeType != versioning.ChangeMajor {
		a.logger.Warn("breaking changes detected in a non-major release",
			"agent", req.Agent, "change_type", req.ChangeType, "changes", len(report.Changes))
	}
	req.Detection = &report
	return nil
}

func (a *app) recordDetection(report changespec.Report) {
	if report.ParseError != nil {
		a.metrics.RecordParseFailure()
	}
	for _, c := range report.Changes {
		a.metrics.RecordBreakingChange(string(c.Severity))
	}
}

func runDetect(ctx context.Context, a *app, opts cli.DetectOptions) error {
	oldSnap, err := snapshot.LoadDir(opts.OldDir)
	if err != nil {
		return err
	}
	newSnap, err := snapshot.LoadDir(opts.NewDir)
	if err != nil {
		return err
	}
	report, err := a.detector.DetectSnapshots(ctx, oldSnap, newSnap)
	if err != nil {
		return err
	}
	a.recordDetection(report)

	if opts.Guide && report.ParseError == nil {
		fmt.Fprint(a.out, breaking.GenerateMigrationGuide(report.Changes))
	} else if err := a.printDetection(report); err != nil {
		return err
	}
	if report.ParseError != nil {
		return fmt.Errorf("parse error in %s:%d: %s", report.ParseError.File, report.ParseError.Line, report.ParseError.Message)
	}
	return nil
}

func depsHandlers(globals *cli.GlobalOptions) cli.DepsRunFuncs {
	return cli.DepsRunFuncs{
		Add: func(ctx context.Context, opts cli.DepsAddOptions) error {
			return withApp(globals, func(a *app) error {
				kind, err := depgraph.ParseKind(opts.Kind)
				if err != nil {
					return err
				}
				dep, cyclic, err := a.tracker.AddDependency(ctx, opts.From, opts.To, opts.Constraint, kind)
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(map[string]any{"dependency": dep, "cycle_detected": cyclic})
				}
				fmt.Fprintf(a.out, "%s -> %s (%s %s)\n", dep.From, dep.To, dep.Kind, constraintText(dep.Constraint))
				if cyclic {
					fmt.Fprintln(a.out, "warning: this dependency closes a cycle")
				}
				return nil
			})
		},
		Remove: func(ctx context.Context, from, to string) error {
			return withApp(globals, func(a *app) error {
				removed, err := a.tracker.RemoveDependency(ctx, from, to)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s does not depend on %s", from, to)
				}
				return nil
			})
		},
		List: func(ctx context.Context, opts cli.DepsQueryOptions) error {
			return withApp(globals, func(a *app) error {
				var (
					deps []depgraph.Dependency
					err  error
				)
				if opts.Dependents {
					deps, err = a.tracker.Dependents(ctx, opts.Agent)
				} else {
					deps, err = a.tracker.Dependencies(ctx, opts.Agent)
				}
				if err != nil {
					return err
				}
				return a.printDependencies(deps)
			})
		},
		Cycles: func(ctx context.Context) error {
			return withApp(globals, func(a *app) error {
				cycles, err := a.tracker.DetectCycles(ctx)
				if err != nil {
					return err
				}
				return a.printCycles(cycles)
			})
		},
		Order: func(ctx context.Context, opts cli.DepsQueryOptions) error {
			return withApp(globals, func(a *app) error {
				g, err := a.tracker.Graph(ctx)
				if err != nil {
					return err
				}
				ordering := g.TopologicalOrder(opts.Agent)
				if opts.Dependents {
					ordering = g.DependentOrder(opts.Agent)
				}
				return a.printOrdering(ordering)
			})
		},
		Check: func(ctx context.Context) error {
			return withApp(globals, func(a *app) error {
				violations, err := a.tracker.CheckConstraints(ctx, a.manager.CurrentVersion)
				if err != nil {
					return err
				}
				if err := a.printViolations(violations); err != nil {
					return err
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d dependency constraint(s) violated", len(violations))
				}
				return nil
			})
		},
		Import: func(ctx context.Context, agent string) error {
			return withApp(globals, func(a *app) error {
				return importGoDeps(ctx, a, agent)
			})
		},
	}
}

func importGoDeps(ctx context.Context, a *app, agent string) error {
	dir, err := a.workspace.AgentDir(agent)
	if err != nil {
		return err
	}
	modules, err := gomod.AgentModules(a.cfg.Workspace.Root)
	if err != nil {
		return err
	}
	reqs, err := gomod.AgentRequirements(dir, modules)
	if err != nil {
		return err
	}

	var added []depgraph.Dependency
	for _, req := range reqs {
		if req.Agent == agent {
			continue
		}
		if req.Replaced {
			a.logger.Warn("requirement is replaced locally, constraint may not match the built code",
				"agent", agent, "module", req.Module)
		}
		dep, _, err := a.tracker.AddDependency(ctx, agent, req.Agent, req.Constraint, depgraph.KindRequires)
		if err != nil {
			return fmt.Errorf("recording %s -> %s: %w", agent, req.Agent, err)
		}
		added = append(added, dep)
	}
	return a.printDependencies(added)
}
