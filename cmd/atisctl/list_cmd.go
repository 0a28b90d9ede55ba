package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/atis-gateway/internal/app"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/service"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

type listOutput struct {
	Resource   string               `json:"resource"`
	State      listquery.ViewState  `json:"state"`
	Message    string               `json:"message,omitempty"`
	Pagination listquery.Pagination `json:"pagination"`
	Rows       []map[string]any     `json:"rows"`
}

type lister func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error)

var listers = map[string]lister{
	string(models.ResourceInstitutions): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Institutions, p, q)
	},
	string(models.ResourceSurveys): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Surveys, p, q)
	},
	string(models.ResourceStudents): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Students, p, q)
	},
	string(models.ResourceTasks): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Tasks, p, q)
	},
	string(models.ResourceAssignedTasks): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.AssignedTasks, p, q)
	},
	string(models.ResourceLinks): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Links, p, q)
	},
	string(models.ResourceAssessments): func(ctx context.Context, a *app.App, p models.Principal, q url.Values) (listOutput, error) {
		return runList(ctx, a.Assessments, p, q)
	},
}

func listResources() []string {
	names := make([]string, 0, len(listers))
	for name := range listers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runList[T any](ctx context.Context, svc *service.ListService[T], p models.Principal, q url.Values) (listOutput, error) {
	result := svc.List(ctx, p, svc.Parse(q))
	view := result.View
	if view.State == listquery.StateError || view.State == listquery.StateForbidden {
		return listOutput{}, fmt.Errorf("%s: %s", view.State, view.Message)
	}
	rows, err := records(view.Rows)
	if err != nil {
		return listOutput{}, err
	}
	return listOutput{
		Resource:   string(svc.Resource()),
		State:      view.State,
		Message:    view.Message,
		Pagination: view.Pagination,
		Rows:       rows,
	}, nil
}

// parseFilters turns repeated k=v flags into list query parameters.
func parseFilters(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --filter %q: want key=value", pair)
		}
		q.Add(key, strings.TrimSpace(value))
	}
	return q, nil
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		filters   []string
		sortField string
		direction string
		page      int
		perPage   int
		search    string
	)

	cmd := &cobra.Command{
		Use:       "list <resource>",
		Short:     "Print one page of a resource list",
		Long:      "Print one page of a resource list. Resources: " + strings.Join(listResources(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: listResources(),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, ok := listers[args[0]]
			if !ok {
				return fmt.Errorf("unknown resource %q (want one of %s)", args[0], strings.Join(listResources(), ", "))
			}
			q, err := parseFilters(filters)
			if err != nil {
				return err
			}
			if sortField != "" {
				q.Set(listquery.ParamSort, sortField)
				q.Set(listquery.ParamDirection, direction)
			}
			if page > 0 {
				q.Set(listquery.ParamPage, strconv.Itoa(page))
			}
			if perPage > 0 {
				q.Set(listquery.ParamPerPage, strconv.Itoa(perPage))
			}
			if search != "" {
				q.Set(listquery.ParamSearch, search)
			}

			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := run(s.ctx, s.app, s.principal, q)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if len(out.Rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), out.Message)
				return nil
			}
			if err := writeTable(cmd.OutOrStdout(), out.Rows, nil); err != nil {
				return err
			}
			p := out.Pagination
			fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d total)\n", p.Page, p.LastPage, p.Total)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVar(&sortField, "sort", "", "Sort field")
	cmd.Flags().StringVar(&direction, "direction", "asc", "Sort direction (asc or desc)")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Rows per page")
	cmd.Flags().StringVar(&search, "search", "", "Free-text search")
	return cmd
}
