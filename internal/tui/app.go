// Package tui provides a k9s-style terminal UI for browsing stratus runs,
// workflows, agents and eval results.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
	"github.com/klubi/stratus/pkg/client"
)

const (
	viewRuns      = "runs"
	viewWorkflows = "workflows"
	viewAgents    = "agents"
	viewEvals     = "evals"
)

// requestTimeout bounds each API call made from the UI.
const requestTimeout = 10 * time.Second

// App is the main TUI application. It polls the stratus REST API and
// displays resources in a navigable table view.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	footer      *tview.TextView
	table       *tview.Table
	filterInput *tview.InputField
	detailView  *tview.TextView
	layout      *tview.Flex

	client      *client.Client
	serverAddr  string
	currentView string
	filter      string

	// Cached data from the last successful refresh.
	runs      []v1alpha1.WorkflowRun
	workflows []v1alpha1.WorkflowInfo
	agents    []v1alpha1.AgentInfo
	evals     []v1alpha1.EvalResult
	lastErr   error

	mu sync.Mutex

	// mainFlex is the outermost vertical flex (header + content + footer).
	mainFlex *tview.Flex

	describeOpen bool
	filterOpen   bool
}

// NewApp creates a new TUI application connected to the given API server.
func NewApp(serverAddr string) *App {
	a := &App{
		app:         tview.NewApplication(),
		client:      client.New(serverAddr),
		serverAddr:  serverAddr,
		currentView: viewRuns,
	}

	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0). // header row stays fixed
		SetSeparator(tview.Borders.Vertical)
	a.table.SetBorder(false)
	a.table.SetBorderPadding(0, 0, 1, 1)

	a.filterInput = tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(40).
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorYellow)

	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.mu.Lock()
			a.filter = a.filterInput.GetText()
			a.mu.Unlock()
		case tcell.KeyEscape:
			a.mu.Lock()
			a.filter = ""
			a.mu.Unlock()
			a.filterInput.SetText("")
		default:
			return
		}
		a.hideFilter()
		a.updateHeader()
		a.updateTable()
		a.app.SetFocus(a.table)
	})

	a.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	a.detailView.SetBorder(true).
		SetTitle(" Describe ").
		SetBorderColor(tcell.ColorDodgerBlue)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 1, true)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(contentFlex, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.layout = contentFlex

	a.pages = tview.NewPages().
		AddPage("main", a.mainFlex, true, true)

	a.updateHeader()
	a.updateFooter()
	a.setupKeyBindings()

	a.app.SetRoot(a.pages, true).SetFocus(a.table)

	return a
}

// Run starts the background refresh goroutine and runs the TUI event loop.
func (a *App) Run() error {
	a.refresh()
	a.updateTable()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			a.refresh()
			a.app.QueueUpdateDraw(a.updateTable)
		}
	}()

	return a.app.Run()
}

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.filterOpen {
			return event
		}
		if a.describeOpen && event.Key() == tcell.KeyEscape {
			a.hideDescribe()
			return nil
		}

		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case '1':
				a.switchView(viewRuns)
			case '2':
				a.switchView(viewWorkflows)
			case '3':
				a.switchView(viewAgents)
			case '4':
				a.switchView(viewEvals)
			case '/':
				a.showFilter()
			case 'q':
				a.app.Stop()
			case 'r':
				a.refreshAsync()
			case 'd':
				a.confirmDelete()
			case 'j':
				row, _ := a.table.GetSelection()
				if row < a.table.GetRowCount()-1 {
					a.table.Select(row+1, 0)
				}
			case 'k':
				row, _ := a.table.GetSelection()
				if row > 1 { // row 0 is the header
					a.table.Select(row-1, 0)
				}
			default:
				return event
			}
			return nil
		case tcell.KeyEnter:
			a.showDescribe()
			return nil
		case tcell.KeyEscape:
			if a.filter != "" {
				a.mu.Lock()
				a.filter = ""
				a.mu.Unlock()
				a.updateHeader()
				a.updateTable()
			}
			return nil
		}
		return event
	})
}

func (a *App) switchView(view string) {
	a.mu.Lock()
	a.currentView = view
	a.mu.Unlock()

	a.hideDescribe()
	a.updateHeader()
	a.refreshAsync()
}

// ---------------------------------------------------------------------------
// Data refresh
// ---------------------------------------------------------------------------

func (a *App) refreshAsync() {
	go func() {
		a.refresh()
		a.app.QueueUpdateDraw(a.updateTable)
	}()
}

func (a *App) refresh() {
	a.mu.Lock()
	view := a.currentView
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch view {
	case viewRuns:
		var runs []v1alpha1.WorkflowRun
		runs, err = a.client.ListRuns(ctx, "")
		// Newest first.
		sort.SliceStable(runs, func(i, j int) bool {
			return runs[i].Metadata.CreatedAt.After(runs[j].Metadata.CreatedAt)
		})
		a.mu.Lock()
		a.runs = runs
		a.mu.Unlock()
	case viewWorkflows:
		var wfs []v1alpha1.WorkflowInfo
		wfs, err = a.client.ListWorkflows(ctx)
		a.mu.Lock()
		a.workflows = wfs
		a.mu.Unlock()
	case viewAgents:
		var agents []v1alpha1.AgentInfo
		agents, err = a.client.ListAgents(ctx)
		a.mu.Lock()
		a.agents = agents
		a.mu.Unlock()
	case viewEvals:
		var results []v1alpha1.EvalResult
		results, err = a.client.ListEvals(ctx, "")
		a.mu.Lock()
		a.evals = results
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Table rendering
// ---------------------------------------------------------------------------

func (a *App) updateTable() {
	row, _ := a.table.GetSelection()
	a.table.Clear()

	a.mu.Lock()
	view := a.currentView
	filter := strings.ToLower(a.filter)
	err := a.lastErr
	a.mu.Unlock()

	if err != nil {
		a.setTableHeaders([]string{"ERROR"})
		a.table.SetCell(1, 0,
			tview.NewTableCell(fmt.Sprintf("Error: %v", err)).
				SetTextColor(tcell.ColorRed))
		return
	}

	var rows [][]string
	switch view {
	case viewRuns:
		a.setTableHeaders(runColumns)
		a.mu.Lock()
		rows = runRows(a.runs)
		a.mu.Unlock()
	case viewWorkflows:
		a.setTableHeaders(workflowColumns)
		a.mu.Lock()
		rows = workflowRows(a.workflows)
		a.mu.Unlock()
	case viewAgents:
		a.setTableHeaders(agentColumns)
		a.mu.Lock()
		rows = agentRows(a.agents)
		a.mu.Unlock()
	case viewEvals:
		a.setTableHeaders(evalColumns)
		a.mu.Lock()
		rows = evalRows(a.evals)
		a.mu.Unlock()
	}

	r := 1
	for _, cols := range rows {
		if !matchesFilter(filter, cols...) {
			continue
		}
		for c, text := range cols {
			cell := tview.NewTableCell(text).SetExpansion(1)
			if view == viewRuns && c == 2 {
				cell.SetTextColor(phaseColor(text))
			}
			a.table.SetCell(r, c, cell)
		}
		r++
	}

	// Keep the selection where it was across refreshes.
	if n := a.table.GetRowCount(); n > 1 {
		if row < 1 || row >= n {
			row = 1
		}
		a.table.Select(row, 0)
	}
}

func (a *App) setTableHeaders(headers []string) {
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorWhite).
			SetBackgroundColor(tcell.ColorDarkCyan).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		a.table.SetCell(0, col, cell)
	}
}

var (
	runColumns      = []string{"NAME", "WORKFLOW", "PHASE", "STEPS", "AGE"}
	workflowColumns = []string{"KEY", "NAME", "STEPS"}
	agentColumns    = []string{"KEY", "NAME", "MODEL", "TOOLS"}
	evalColumns     = []string{"NAME", "AGENT", "METRIC", "SCORE", "AGE"}
)

func runRows(runs []v1alpha1.WorkflowRun) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		done := 0
		for _, s := range r.Status.Steps {
			if s.Status == v1alpha1.StepSuccess {
				done++
			}
		}
		rows = append(rows, []string{
			r.Metadata.Name,
			r.Spec.Workflow,
			string(r.Status.Phase),
			fmt.Sprintf("%d/%d", done, len(r.Status.Steps)),
			formatAge(r.Metadata.CreatedAt),
		})
	}
	return rows
}

func workflowRows(wfs []v1alpha1.WorkflowInfo) [][]string {
	rows := make([][]string, 0, len(wfs))
	for _, w := range wfs {
		ids := make([]string, len(w.Steps))
		for i, s := range w.Steps {
			ids[i] = s.ID
		}
		rows = append(rows, []string{w.Key, w.Name, strings.Join(ids, " -> ")})
	}
	return rows
}

func agentRows(agents []v1alpha1.AgentInfo) [][]string {
	rows := make([][]string, 0, len(agents))
	for _, ag := range agents {
		rows = append(rows, []string{ag.Key, ag.Name, ag.Model, strings.Join(ag.Tools, ", ")})
	}
	return rows
}

func evalRows(results []v1alpha1.EvalResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, e := range results {
		rows = append(rows, []string{
			e.Metadata.Name,
			e.Spec.Agent,
			e.Spec.Metric,
			fmt.Sprintf("%.3f", e.Status.Score),
			formatAge(e.Metadata.CreatedAt),
		})
	}
	return rows
}

// matchesFilter returns true if any of the values contain the filter string.
func matchesFilter(filter string, values ...string) bool {
	if filter == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), filter) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Describe (detail panel)
// ---------------------------------------------------------------------------

func (a *App) showDescribe() {
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() {
		return
	}
	name := a.table.GetCell(row, 0).Text

	a.mu.Lock()
	view := a.currentView
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var detail string
	switch view {
	case viewRuns:
		workflow := a.table.GetCell(row, 1).Text
		run, err := a.client.GetRun(ctx, workflow, name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		logs, err := a.client.GetRunLogs(ctx, workflow, name)
		if err != nil {
			logs = nil
		}
		detail = formatRunDescribe(run, logs)
	case viewWorkflows:
		wf, err := a.client.GetWorkflow(ctx, name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		detail = formatWorkflowDescribe(wf)
	case viewAgents:
		ag, err := a.client.GetAgent(ctx, name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
			break
		}
		detail = formatAgentDescribe(ag)
	case viewEvals:
		a.mu.Lock()
		for i := range a.evals {
			if a.evals[i].Metadata.Name == name {
				detail = formatEvalDescribe(&a.evals[i])
			}
		}
		a.mu.Unlock()
	}

	a.detailView.Clear()
	a.detailView.SetText(detail)
	a.detailView.ScrollToBeginning()

	if !a.describeOpen {
		a.layout.AddItem(a.detailView, 0, 1, false)
		a.describeOpen = true
	}
}

func (a *App) hideDescribe() {
	if a.describeOpen {
		a.layout.RemoveItem(a.detailView)
		a.describeOpen = false
		a.app.SetFocus(a.table)
	}
}

func formatRunDescribe(run *v1alpha1.WorkflowRun, logs []v1alpha1.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Name:[-::-]       %s\n", run.Metadata.Name)
	fmt.Fprintf(&b, "[::b]Workflow:[-::-]   %s\n", run.Spec.Workflow)
	fmt.Fprintf(&b, "[::b]Phase:[-::-]      [%s]%s[-]\n", phaseColorName(string(run.Status.Phase)), run.Status.Phase)
	fmt.Fprintf(&b, "[::b]Trigger:[-::-]    %s\n", compactJSON(run.Spec.TriggerData))
	fmt.Fprintf(&b, "[::b]Created:[-::-]    %s\n", run.Metadata.CreatedAt.Format(time.RFC3339))
	if !run.Status.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "[::b]Finished:[-::-]   %s\n", run.Status.FinishedAt.Format(time.RFC3339))
	}

	b.WriteString("\n[::b]Steps:[-::-]\n")
	for _, s := range run.Status.Steps {
		fmt.Fprintf(&b, "  %-20s [%s]%s[-]\n", s.ID, phaseColorName(string(s.Status)), s.Status)
	}

	for _, s := range run.Status.Steps {
		res, ok := run.Status.Results[s.ID]
		if !ok || res.Output == nil {
			continue
		}
		fmt.Fprintf(&b, "\n[::b]Output (%s):[-::-]\n%s\n", s.ID, tview.Escape(prettyJSON(res.Output)))
	}

	if run.Status.Error != "" {
		fmt.Fprintf(&b, "\n[red][::b]Error:[-::-]\n%s[-]\n", tview.Escape(run.Status.Error))
	}

	if len(logs) > 0 {
		b.WriteString("\n[::b]Timeline:[-::-]\n")
		for _, e := range logs {
			fmt.Fprintf(&b, "  %s [%s]%-5s[-] %s\n",
				e.Timestamp.Format("15:04:05"), levelColorName(e.Level), e.Level, tview.Escape(e.Message))
		}
	}
	return b.String()
}

func formatWorkflowDescribe(wf *v1alpha1.WorkflowInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Key:[-::-]   %s\n", wf.Key)
	fmt.Fprintf(&b, "[::b]Name:[-::-]  %s\n", wf.Name)
	b.WriteString("\n[::b]Steps:[-::-]\n")
	for i, s := range wf.Steps {
		fmt.Fprintf(&b, "  %d. %s", i+1, s.ID)
		if s.Description != "" {
			fmt.Fprintf(&b, " - %s", s.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n[::b]Trigger Schema:[-::-]\n%s\n", tview.Escape(prettyJSON(wf.TriggerSchema)))
	return b.String()
}

func formatAgentDescribe(ag *v1alpha1.AgentInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Key:[-::-]    %s\n", ag.Key)
	fmt.Fprintf(&b, "[::b]Name:[-::-]   %s\n", ag.Name)
	fmt.Fprintf(&b, "[::b]Model:[-::-]  %s\n", ag.Model)
	fmt.Fprintf(&b, "[::b]Tools:[-::-]  %s\n", strings.Join(ag.Tools, ", "))
	fmt.Fprintf(&b, "\n[::b]Instructions:[-::-]\n%s\n", tview.Escape(strings.TrimSpace(ag.Instructions)))
	return b.String()
}

func formatEvalDescribe(e *v1alpha1.EvalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Name:[-::-]    %s\n", e.Metadata.Name)
	fmt.Fprintf(&b, "[::b]Agent:[-::-]   %s\n", e.Spec.Agent)
	fmt.Fprintf(&b, "[::b]Metric:[-::-]  %s\n", e.Spec.Metric)
	fmt.Fprintf(&b, "[::b]Score:[-::-]   %.3f\n", e.Status.Score)
	fmt.Fprintf(&b, "\n[::b]Input:[-::-]\n%s\n", tview.Escape(e.Spec.Input))
	fmt.Fprintf(&b, "\n[::b]Output:[-::-]\n%s\n", tview.Escape(e.Spec.Output))
	if len(e.Status.Info) > 0 {
		fmt.Fprintf(&b, "\n[::b]Info:[-::-]\n%s\n", tview.Escape(prettyJSON(e.Status.Info)))
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func (a *App) showFilter() {
	if a.filterOpen {
		return
	}
	a.filterOpen = true
	a.filterInput.SetText(a.filter)

	a.mainFlex.RemoveItem(a.footer)
	a.mainFlex.AddItem(a.filterInput, 1, 0, true)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	if !a.filterOpen {
		return
	}
	a.filterOpen = false

	a.mainFlex.RemoveItem(a.filterInput)
	a.mainFlex.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.table)
}

// ---------------------------------------------------------------------------
// Delete with confirmation
// ---------------------------------------------------------------------------

// confirmDelete asks before deleting the selected run. Only runs can be
// deleted; registry entries are fixed at startup.
func (a *App) confirmDelete() {
	if a.currentView != viewRuns {
		return
	}
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() {
		return
	}
	name := a.table.GetCell(row, 0).Text
	workflow := a.table.GetCell(row, 1).Text

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete run %q of %s?", name, workflow)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Delete" {
				a.deleteRun(workflow, name)
			}
			a.pages.RemovePage("confirm")
			a.app.SetFocus(a.table)
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("confirm", modal, true, true)
}

func (a *App) deleteRun(workflow, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := a.client.DeleteRun(ctx, workflow, name); err != nil {
		a.footer.SetText(fmt.Sprintf(" [red]Delete failed: %v[-]", err))
		go func() {
			time.Sleep(3 * time.Second)
			a.app.QueueUpdateDraw(a.updateFooter)
		}()
		return
	}
	a.refreshAsync()
}

// ---------------------------------------------------------------------------
// Header & Footer
// ---------------------------------------------------------------------------

func (a *App) updateHeader() {
	views := []struct {
		key  string
		view string
		name string
	}{
		{"1", viewRuns, "Runs"},
		{"2", viewWorkflows, "Workflows"},
		{"3", viewAgents, "Agents"},
		{"4", viewEvals, "Evals"},
	}

	a.mu.Lock()
	current := a.currentView
	filter := a.filter
	a.mu.Unlock()

	var parts []string
	for _, v := range views {
		if v.view == current {
			parts = append(parts, fmt.Sprintf("[::b]<%s>[%s][::-]", v.key, v.name))
		} else {
			parts = append(parts, fmt.Sprintf("<%s>%s", v.key, v.name))
		}
	}

	filterInfo := ""
	if filter != "" {
		filterInfo = fmt.Sprintf(" | [yellow]filter: %s[-]", filter)
	}

	a.header.SetText(fmt.Sprintf(" [::b]Stratus[::-] | %s | %s%s",
		a.serverAddr, strings.Join(parts, "  "), filterInfo))
}

func (a *App) updateFooter() {
	a.footer.SetText(" [yellow]<enter>[white]Describe  [yellow]<d>[white]Delete run  [yellow]</>[white]Filter  [yellow]<q>[white]Quit  [yellow]<r>[white]Refresh  [yellow]<esc>[white]Back")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatAge returns a human-readable duration string since the given time.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func prettyJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// phaseColor returns the tcell color for a run phase or step status.
func phaseColor(phase string) tcell.Color {
	switch phase {
	case string(v1alpha1.RunSucceeded), string(v1alpha1.StepSuccess):
		return tcell.ColorGreen
	case string(v1alpha1.RunRunning), string(v1alpha1.StepRunning):
		return tcell.ColorYellow
	case string(v1alpha1.RunFailed), string(v1alpha1.StepFailed):
		return tcell.ColorRed
	case string(v1alpha1.StepSkipped):
		return tcell.ColorGray
	default:
		return tcell.ColorWhite
	}
}

// phaseColorName returns the tview color tag name for a phase string.
func phaseColorName(phase string) string {
	switch phaseColor(phase) {
	case tcell.ColorGreen:
		return "green"
	case tcell.ColorYellow:
		return "yellow"
	case tcell.ColorRed:
		return "red"
	case tcell.ColorGray:
		return "gray"
	default:
		return "white"
	}
}

func levelColorName(level string) string {
	switch level {
	case "error":
		return "red"
	case "warn":
		return "yellow"
	default:
		return "green"
	}
}
