package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"deploy-controller/internal/config"
	"deploy-controller/internal/db"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"
	"deploy-controller/internal/repository"
	credentialservice "deploy-controller/internal/services/credential_service"
	deployservice "deploy-controller/internal/services/deploy_service"
	frameworkservice "deploy-controller/internal/services/framework_service"
	tf "deploy-controller/internal/services/terraform_service"
)

// env는 명령이 사용하는 외부 자원입니다. 테스트에서 교체합니다.
type env struct {
	loadConfig func() (*config.Config, error)
	openDB     func(cfg *config.Config) (*gorm.DB, error)
	runner     func(cfg *config.Config) tf.Runner
}

func defaultEnv() env {
	return env{
		loadConfig: config.Load,
		openDB:     db.Connect,
		runner: func(cfg *config.Config) tf.Runner {
			return tf.NewExecRunner(cfg.TerraformBin)
		},
	}
}

func newRootCmd(e env) *cobra.Command {
	var (
		catalogPath string
		jsonOutput  bool
	)

	root := &cobra.Command{
		Use:           "deployctl",
		Short:         "Operate deployments managed by deploy-controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(os.Getenv("LOG_LEVEL"), "console")
		},
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")

	frameworks := &cobra.Command{
		Use:   "frameworks",
		Short: "List supported frameworks and their defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := frameworkservice.Load(catalogPath)
			if err != nil {
				return err
			}
			return printFrameworks(cmd.OutOrStdout(), catalog, jsonOutput)
		},
	}
	frameworks.Flags().StringVar(&catalogPath, "catalog", "configs/frameworks.yaml", "framework catalog file")

	show := &cobra.Command{
		Use:   "show <owner> <repo>",
		Short: "Show the latest deployment record of a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(e, func(cfg *config.Config, database *gorm.DB) error {
				deployments := repository.NewDeploymentRepository(database)
				rec, err := deployments.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				count, err := deployments.CountForPair(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printDeployment(cmd.OutOrStdout(), rec, count, jsonOutput)
			})
		},
	}

	destroy := &cobra.Command{
		Use:   "destroy <owner> <repo>",
		Short: "Run terraform destroy for a deployment's infrastructure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(e, func(cfg *config.Config, database *gorm.DB) error {
				runner := e.runner(cfg)
				credentials := credentialservice.NewCredentialService(
					repository.NewIdentityRepository(database), runner,
					credentialservice.NewSealer(cfg.SecretsKey), cfg.IAMModuleDir, cfg.IdentityStateDir,
				)
				svc := deployservice.NewDeployService(deployservice.Deps{
					Identities:  credentials,
					Provisioner: tf.NewTerraformService(runner),
					Records:     repository.NewDeploymentRepository(database),
					Region:      cfg.AWSRegion,
					Timeout:     cfg.DeployTimeout,
				})
				rec, err := svc.DestroyDeploy(context.WithoutCancel(cmd.Context()), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "destroyed %s/%s (%s)\n", rec.Owner, rec.RepoName, rec.AbsolutePath)
				return nil
			})
		},
	}

	root.AddCommand(frameworks, show, destroy)
	return root
}

func withDB(e env, fn func(cfg *config.Config, database *gorm.DB) error) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	database, err := e.openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(database)
	return fn(cfg, database)
}

func printFrameworks(w io.Writer, catalog *frameworkservice.Catalog, jsonOutput bool) error {
	byCategory := catalog.ByCategory()
	if jsonOutput {
		return json.NewEncoder(w).Encode(byCategory)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNAME\tPORT\tBUILD\tRUN")
	for _, c := range categories {
		for _, d := range byCategory[models.FrameworkCategory(c)] {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c, d.Name, d.DefaultPort, d.BuildCommand, d.RunCommand)
		}
	}
	return tw.Flush()
}

func printDeployment(w io.Writer, rec *models.Deployment, count int64, jsonOutput bool) error {
	if jsonOutput {
		return json.NewEncoder(w).Encode(map[string]any{"deployment": rec, "records": count})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "repository\t%s/%s\n", rec.Owner, rec.RepoName)
	fmt.Fprintf(tw, "status\t%s\n", rec.Status)
	fmt.Fprintf(tw, "stage\t%s\n", rec.Stage)
	fmt.Fprintf(tw, "framework\t%s\n", rec.Framework)
	fmt.Fprintf(tw, "branch\t%s\n", rec.Branch)
	fmt.Fprintf(tw, "url\t%s\n", rec.LoadBalancerURL)
	fmt.Fprintf(tw, "image\t%s:%s\n", rec.EcrRepoURL, rec.ImageTag)
	if rec.CodeBuildBuildID != nil {
		fmt.Fprintf(tw, "build\t%s\n", *rec.CodeBuildBuildID)
	}
	if rec.FailureReason != "" {
		fmt.Fprintf(tw, "failure\t%s\n", rec.FailureReason)
	}
	fmt.Fprintf(tw, "records\t%d\n", count)
	return tw.Flush()
}
