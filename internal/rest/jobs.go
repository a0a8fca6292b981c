package rest

import (
	"net/http"

	"github.com/dfryer1193/publog/api"
	"github.com/dfryer1193/publog/blog/migration"
	"github.com/gin-gonic/gin"
)

// RunJob runs a migration job for ?group= and reports its result. Item
// failures still answer 200; only a job-level failure is a 500.
func (a *Api) RunJob(c *gin.Context) {
	job, ok := a.jobs[c.Param("job")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	group := c.Query("group")
	if group == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group is required"})
		return
	}

	res, err := a.runner.Run(c.Request.Context(), job, group)
	out := jobResult(res)
	status := http.StatusOK
	if err != nil {
		out.Error = err.Error()
		status = http.StatusInternalServerError
	}
	c.JSON(status, out)
}

func jobResult(res *migration.Result) api.JobResult {
	if res == nil {
		return api.JobResult{}
	}
	out := api.JobResult{
		JobID:     res.JobID,
		Job:       res.Job,
		Group:     res.Group,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Skipped:   res.Skipped,
		Report:    res.Report,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return out
}
