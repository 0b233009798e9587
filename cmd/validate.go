package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/store"
	"github.com/sells-group/sitecheck/internal/validator"
)

var (
	validateID    string
	validateName  string
	validateURL   string
	validateCity  string
	validateState string
	validatePhone string
	validateForce bool
	validateApply bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the website of a single business",
	Long:  "Runs the full pipeline for one business, either loaded from the store by --id or described ad hoc with --name/--url. Prints the result JSON to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var b model.Business
		var log model.AttemptLog
		switch {
		case validateID != "":
			got, err := env.Store.GetBusiness(ctx, validateID)
			if err != nil {
				return eris.Wrapf(err, "load business %s", validateID)
			}
			b = *got
			if log, err = env.Store.GetAttemptLog(ctx, b.ID); err != nil {
				return err
			}
		case validateName != "":
			b = model.Business{
				ID:    uuid.NewString(),
				Name:  validateName,
				URL:   validateURL,
				City:  validateCity,
				State: validateState,
				Phone: validatePhone,
			}
		default:
			return eris.New("either --id or --name is required")
		}

		res, err := env.Validator.Validate(ctx, b, log, validator.RunOptions{Force: validateForce})
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		if validateApply {
			if validateID == "" {
				if err := env.Store.UpsertBusiness(ctx, b); err != nil {
					return err
				}
			}
			if err := env.Store.ApplyResult(ctx, res); err != nil {
				return eris.Wrap(err, "apply result")
			}
			zap.L().Info("result applied",
				zap.String("business_id", b.ID),
				zap.String("next_state", string(res.NextState)),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <business-id>",
	Short: "Show past validation results for a business",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.ListResults(ctx, args[0], 20)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return store.ErrNotFound
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateID, "id", "", "business id in the store")
	validateCmd.Flags().StringVar(&validateName, "name", "", "business name (ad hoc run)")
	validateCmd.Flags().StringVar(&validateURL, "url", "", "candidate website URL")
	validateCmd.Flags().StringVar(&validateCity, "city", "", "business city")
	validateCmd.Flags().StringVar(&validateState, "state", "", "business state")
	validateCmd.Flags().StringVar(&validatePhone, "phone", "", "business phone")
	validateCmd.Flags().BoolVar(&validateForce, "force", false, "re-validate even if the business is in a terminal state")
	validateCmd.Flags().BoolVar(&validateApply, "apply", false, "persist the result and state transition")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(resultsCmd)
}
