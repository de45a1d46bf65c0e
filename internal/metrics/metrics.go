package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Simple Prometheus-style metrics for HTTP requests and pipeline tasks.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	tasksTotal   = make(map[taskKey]int64)
	taskMsSum    = make(map[string]int64)
	taskMsCount  = make(map[string]int64)
	stageRetries = make(map[string]int64)
	jobsTotal    = make(map[string]int64)
	regensTotal  = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type taskKey struct {
	Kind    string
	Success string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordTask increments the task counter for a kind and records how
// long the handler ran.
func RecordTask(kind string, success bool, elapsed time.Duration) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	tasksTotal[taskKey{Kind: kind, Success: s}]++
	taskMsSum[kind] += elapsed.Milliseconds()
	taskMsCount[kind]++
}

// RecordStageRetry counts one failed generation attempt for a stage.
func RecordStageRetry(stage string) {
	mu.Lock()
	defer mu.Unlock()
	stageRetries[stage]++
}

// RecordJobSubmitted counts job submissions.
func RecordJobSubmitted() {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal["submitted"]++
}

// RecordRegeneration counts regeneration requests per stage.
func RecordRegeneration(stage string) {
	mu.Lock()
	defer mu.Unlock()
	regensTotal[stage]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP reelforge_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE reelforge_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "reelforge_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP reelforge_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE reelforge_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP reelforge_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE reelforge_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "reelforge_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "reelforge_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP reelforge_tasks_total Total pipeline tasks executed\n")
	b.WriteString("# TYPE reelforge_tasks_total counter\n")

	var taskKeys []taskKey
	for k := range tasksTotal {
		taskKeys = append(taskKeys, k)
	}
	sort.Slice(taskKeys, func(i, j int) bool {
		if taskKeys[i].Kind != taskKeys[j].Kind {
			return taskKeys[i].Kind < taskKeys[j].Kind
		}
		return taskKeys[i].Success < taskKeys[j].Success
	})
	for _, k := range taskKeys {
		fmt.Fprintf(&b, "reelforge_tasks_total{kind=\"%s\",success=\"%s\"} %d\n",
			k.Kind, k.Success, tasksTotal[k])
	}

	b.WriteString("# HELP reelforge_task_duration_ms_sum Total task handler duration in milliseconds\n")
	b.WriteString("# TYPE reelforge_task_duration_ms_sum counter\n")
	b.WriteString("# HELP reelforge_task_duration_ms_count Task count for duration metric\n")
	b.WriteString("# TYPE reelforge_task_duration_ms_count counter\n")

	var taskKinds []string
	for k := range taskMsSum {
		taskKinds = append(taskKinds, k)
	}
	sort.Strings(taskKinds)
	for _, k := range taskKinds {
		fmt.Fprintf(&b, "reelforge_task_duration_ms_sum{kind=\"%s\"} %d\n", k, taskMsSum[k])
		fmt.Fprintf(&b, "reelforge_task_duration_ms_count{kind=\"%s\"} %d\n", k, taskMsCount[k])
	}

	b.WriteString("# HELP reelforge_stage_retries_total Failed generation attempts per stage\n")
	b.WriteString("# TYPE reelforge_stage_retries_total counter\n")

	var stages []string
	for s := range stageRetries {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Fprintf(&b, "reelforge_stage_retries_total{stage=\"%s\"} %d\n", s, stageRetries[s])
	}

	b.WriteString("# HELP reelforge_jobs_total Job submissions\n")
	b.WriteString("# TYPE reelforge_jobs_total counter\n")

	var jobEvents []string
	for e := range jobsTotal {
		jobEvents = append(jobEvents, e)
	}
	sort.Strings(jobEvents)
	for _, e := range jobEvents {
		fmt.Fprintf(&b, "reelforge_jobs_total{event=\"%s\"} %d\n", e, jobsTotal[e])
	}

	b.WriteString("# HELP reelforge_regenerations_total Regeneration requests per stage\n")
	b.WriteString("# TYPE reelforge_regenerations_total counter\n")

	var regenStages []string
	for s := range regensTotal {
		regenStages = append(regenStages, s)
	}
	sort.Strings(regenStages)
	for _, s := range regenStages {
		fmt.Fprintf(&b, "reelforge_regenerations_total{stage=\"%s\"} %d\n", s, regensTotal[s])
	}

	return b.String()
}
