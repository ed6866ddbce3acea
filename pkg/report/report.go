// Package report renders stored bench runs as HTML and PDF.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/sysinfo"
)

// ReportData contains all data needed for report generation
type ReportData struct {
	Run          *db.Run
	Results      []*db.Result
	Channels     []*db.Channel
	Failures     []string
	Scenario     string
	GeneratedAt  time.Time
	SystemInfo   SystemInfo
	MetricGroups []MetricGroup
}

// SystemInfo is the host summary printed in the report header
type SystemInfo struct {
	Hostname     string
	OS           string
	Architecture string
	CPUModel     string
	CPUCores     int
	TotalMemory  string
	GoVersion    string
}

// MetricGroup groups related metrics together
type MetricGroup struct {
	Name    string
	Metrics []MetricDisplay
}

// MetricDisplay represents a metric for display
type MetricDisplay struct {
	Name  string
	Value string
	Unit  string
	Raw   float64
}

// Generator creates reports from stored runs
type Generator struct {
	database *db.DB
	collect  func() sysinfo.Info
}

// NewGenerator creates a new report generator
func NewGenerator(database *db.DB) *Generator {
	return &Generator{
		database: database,
		collect: func() sysinfo.Info {
			return sysinfo.Collect(sysinfo.Options{})
		},
	}
}

// GenerateHTML generates an HTML report for a run
func (g *Generator) GenerateHTML(runID int64) (string, error) {
	data, err := g.loadReportData(runID)
	if err != nil {
		return "", err
	}
	return renderHTML(data)
}

func renderHTML(data *ReportData) (string, error) {
	tmpl, err := loadHTMLTemplate()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func (g *Generator) loadReportData(runID int64) (*ReportData, error) {
	run, err := g.database.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	results, err := g.database.GetResults(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	channels, err := g.database.GetChannels(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}

	return &ReportData{
		Run:          run,
		Results:      results,
		Channels:     channels,
		Failures:     failures(run),
		Scenario:     run.Scenario,
		GeneratedAt:  time.Now(),
		SystemInfo:   systemInfo(g.collect()),
		MetricGroups: groupMetrics(results),
	}, nil
}

func systemInfo(info sysinfo.Info) SystemInfo {
	return SystemInfo{
		Hostname:     info.Host.Hostname,
		OS:           strings.TrimSpace(info.Host.Platform + " " + info.Host.PlatformVersion),
		Architecture: info.Host.Architecture,
		CPUModel:     info.CPU.ModelName,
		CPUCores:     info.CPU.LogicalCores,
		TotalMemory:  sysinfo.FormatBytes(info.Memory.Total),
		GoVersion:    info.GoVersion,
	}
}

// failures reads the failed checks the recorder kept in the run details
func failures(run *db.Run) []string {
	raw, ok := run.Details["failures"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		out = append(out, fmt.Sprint(f))
	}
	return out
}

var groupOrder = []string{"Bus A", "Bus B", "General"}

// groupMetrics splits metrics by the bus their key names
func groupMetrics(results []*db.Result) []MetricGroup {
	groups := make(map[string][]MetricDisplay)

	for _, result := range results {
		group := "General"
		switch {
		case strings.Contains(result.Metric, "bus_a"):
			group = "Bus A"
		case strings.Contains(result.Metric, "bus_b"):
			group = "Bus B"
		}

		groups[group] = append(groups[group], MetricDisplay{
			Name:  formatMetricName(result.Metric),
			Value: formatValue(result.Value, result.Unit),
			Unit:  result.Unit,
			Raw:   result.Value,
		})
	}

	var metricGroups []MetricGroup
	for _, name := range groupOrder {
		metrics, ok := groups[name]
		if !ok {
			continue
		}
		sort.SliceStable(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
		metricGroups = append(metricGroups, MetricGroup{Name: name, Metrics: metrics})
	}
	return metricGroups
}

func loadHTMLTemplate() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"formatDuration": func(d time.Duration) string {
			return fmt.Sprintf("%.2f seconds", d.Seconds())
		},
		"statusClass": func(success bool) string {
			if success {
				return "success"
			}
			return "failure"
		},
		"statusText": func(success bool) string {
			if success {
				return "PASSED"
			}
			return "FAILED"
		},
		"channelValue": func(c *db.Channel) string {
			if c.Stalled {
				return "stalled"
			}
			if c.Kind == "duty" {
				return fmt.Sprintf("%.2f %%", c.Value)
			}
			return fmt.Sprintf("%.1f Hz", c.Value)
		},
	}

	tmpl, err := template.New("report").Funcs(funcMap).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// formatMetricName turns half_static_bus_a_duty_percent into
// "Half Static Bus A Duty Percent"
func formatMetricName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatValue(value float64, unit string) string {
	switch unit {
	case "%":
		return fmt.Sprintf("%.2f", value)
	case "Hz":
		return fmt.Sprintf("%.1f", value)
	case "bits", "writes":
		return fmt.Sprintf("%.0f", value)
	}
	if value >= 1000000 {
		return fmt.Sprintf("%.2fM", value/1000000)
	}
	if value >= 1000 {
		return fmt.Sprintf("%.2fK", value/1000)
	}
	return fmt.Sprintf("%.2f", value)
}

// htmlTemplate is the run report layout
const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pwmbench Run Report - Run #{{.Run.ID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 30px;
        }
        h1, h2, h3 {
            color: #2c3e50;
        }
        .header {
            border-bottom: 3px solid #FF6B35;
            padding-bottom: 20px;
            margin-bottom: 30px;
        }
        .status {
            display: inline-block;
            padding: 5px 15px;
            border-radius: 4px;
            font-weight: bold;
            text-transform: uppercase;
        }
        .status.success {
            background-color: #10B981;
            color: white;
        }
        .status.failure {
            background-color: #EF4444;
            color: white;
        }
        .info-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin: 20px 0;
        }
        .info-card {
            background-color: #f8f9fa;
            padding: 15px;
            border-radius: 4px;
            border-left: 4px solid #FF6B35;
        }
        .info-card h3 {
            margin: 0 0 10px 0;
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
        }
        .info-card p {
            margin: 0;
            font-size: 1.1em;
            font-weight: 500;
        }
        .metrics-section {
            margin: 30px 0;
        }
        .metric-group {
            margin-bottom: 25px;
        }
        .metric-group h3 {
            background-color: #f0f0f0;
            padding: 10px;
            margin: 0 0 15px 0;
            border-radius: 4px;
        }
        .metrics-table {
            width: 100%;
            border-collapse: collapse;
        }
        .metrics-table th,
        .metrics-table td {
            padding: 10px;
            text-align: left;
            border-bottom: 1px solid #e0e0e0;
        }
        .metrics-table th {
            background-color: #f8f9fa;
            font-weight: 600;
            color: #666;
        }
        .metrics-table tr:last-child td {
            border-bottom: none;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e0e0e0;
            text-align: center;
            color: #666;
            font-size: 0.9em;
        }
        .error-section {
            background-color: #FEE;
            border: 1px solid #FCC;
            border-radius: 4px;
            padding: 15px;
            margin: 20px 0;
        }
        .error-section h3 {
            color: #C00;
            margin-top: 0;
        }
        pre {
            background-color: #f4f4f4;
            padding: 10px;
            border-radius: 4px;
            overflow-x: auto;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>pwmbench Run Report</h1>
            <p>Run ID: #{{.Run.ID}} | Scenario: {{.Scenario}} | 
               Status: <span class="status {{statusClass .Run.Success}}">{{statusText .Run.Success}}</span>
            </p>
        </div>

        <div class="info-grid">
            <div class="info-card">
                <h3>Start Time</h3>
                <p>{{formatTime .Run.StartTime}}</p>
            </div>
            <div class="info-card">
                <h3>End Time</h3>
                <p>{{if .Run.EndTime}}{{formatTime .Run.EndTime}}{{else}}Still Running{{end}}</p>
            </div>
            <div class="info-card">
                <h3>Duration</h3>
                <p>{{if .Run.EndTime}}{{formatDuration .Run.Duration}}{{else}}N/A{{end}}</p>
            </div>
            <div class="info-card">
                <h3>Simulated Time</h3>
                <p>{{.Run.SimTime}} ({{.Run.SimTicks}} ticks)</p>
            </div>
            <div class="info-card">
                <h3>Host</h3>
                <p>{{.SystemInfo.Hostname}} ({{.SystemInfo.OS}} {{.SystemInfo.Architecture}})</p>
            </div>
            <div class="info-card">
                <h3>CPU</h3>
                <p>{{.SystemInfo.CPUModel}} x{{.SystemInfo.CPUCores}}, {{.SystemInfo.TotalMemory}}</p>
            </div>
        </div>

        {{if .Failures}}
        <div class="error-section">
            <h3>Failed Checks</h3>
            <ul>
                {{range .Failures}}<li>{{.}}</li>
                {{end}}
            </ul>
        </div>
        {{else if .Run.Error}}
        <div class="error-section">
            <h3>Error Details</h3>
            <pre>{{.Run.Error}}</pre>
        </div>
        {{end}}

        {{if .Run.Params}}
        <div class="metrics-section">
            <h2>Scenario Parameters</h2>
            <table class="metrics-table">
                <thead>
                    <tr>
                        <th>Parameter</th>
                        <th>Value</th>
                    </tr>
                </thead>
                <tbody>
                    {{range $key, $value := .Run.Params}}
                    <tr>
                        <td>{{$key}}</td>
                        <td>{{$value}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="metrics-section">
            <h2>Measurements</h2>
            {{range .MetricGroups}}
            <div class="metric-group">
                <h3>{{.Name}}</h3>
                <table class="metrics-table">
                    <thead>
                        <tr>
                            <th>Metric</th>
                            <th>Value</th>
                            <th>Unit</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Metrics}}
                        <tr>
                            <td>{{.Name}}</td>
                            <td>{{.Value}}</td>
                            <td>{{.Unit}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>

        {{if .Channels}}
        <div class="metrics-section">
            <h2>Channels</h2>
            <table class="metrics-table">
                <thead>
                    <tr>
                        <th>Case</th>
                        <th>Bus</th>
                        <th>Bit</th>
                        <th>Kind</th>
                        <th>Value</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Channels}}
                    <tr>
                        <td>{{.Case}}</td>
                        <td>{{.Bus}}</td>
                        <td>{{.Bit}}</td>
                        <td>{{.Kind}}</td>
                        <td>{{channelValue .}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by pwmbench on {{formatTime .GeneratedAt}} with {{.SystemInfo.GoVersion}}</p>
        </div>
    </div>
</body>
</html>
`
