package main

import (
	"encoding/json"
	"fmt"

	"homehub-be/internal/constant"
	"homehub-be/internal/dto"
	"homehub-be/internal/service"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create a research plan (run stays in planning)",
	RunE:  runPlan,
}

var (
	planQuery        string
	planEffort       string
	planRecencyDays  int
	planConversation string
	planHousehold    string
	planUser         string
	planJSON         bool
)

func init() {
	addPlanFlags(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&planQuery, "query", "q", "", "Research question (required)")
	cmd.Flags().StringVarP(&planEffort, "effort", "e", "standard", "quick, standard or deep")
	cmd.Flags().IntVar(&planRecencyDays, "recency-days", 0, "Only consider sources from the last N days")
	cmd.Flags().StringVar(&planConversation, "conversation", "", "Conversation id (random when empty)")
	cmd.Flags().StringVar(&planHousehold, "household", "", "Household id (random when empty)")
	cmd.Flags().StringVar(&planUser, "user", "", "Acting user id (random when empty)")

	if err := cmd.MarkFlagRequired("query"); err != nil {
		panic(fmt.Sprintf("failed to mark query flag as required: %v", err))
	}
}

func runPlan(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	res, err := createPlan(e)
	if err != nil {
		return err
	}

	if planJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printPlan(res)
	return nil
}

func createPlan(e *engine) (*dto.CreateResearchPlanResponse, error) {
	conversationId, err := idOrNew(planConversation)
	if err != nil {
		return nil, fmt.Errorf("invalid --conversation: %w", err)
	}
	householdId, err := idOrNew(planHousehold)
	if err != nil {
		return nil, fmt.Errorf("invalid --household: %w", err)
	}
	userId, err := idOrNew(planUser)
	if err != nil {
		return nil, fmt.Errorf("invalid --user: %w", err)
	}

	req := &dto.CreateResearchPlanRequest{
		ConversationId: conversationId,
		Query:          planQuery,
		Effort:         planEffort,
	}
	if planRecencyDays > 0 {
		req.RecencyDays = &planRecencyDays
	}
	return e.ResearchService.CreatePlan(e.ctx, service.Caller{UserId: userId, HouseholdId: householdId}, req)
}

func printPlan(res *dto.CreateResearchPlanResponse) {
	color.Cyan("Run %s (%s, effort %s)", res.RunId, res.Status, res.Effort)
	if res.Planner.Status != constant.PlannerStatusGenerated {
		color.Yellow("Planner fell back to the template plan: %s", res.Planner.Reason)
	}
	fmt.Printf("Objective: %s\n", res.Plan.Objective)
	for i, q := range res.Plan.SubQuestions {
		fmt.Printf("  %d. %s\n", i+1, q)
	}
	fmt.Printf("Budget: %d steps, %ds, %d sources, %d re-queries per sub-question\n",
		res.Budget.MaxSteps, res.Budget.MaxRuntimeSeconds, res.Budget.MinSources, res.Budget.MaxRequeriesPerSubQuestion)
}

func idOrNew(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}
