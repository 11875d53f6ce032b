package harvest

// Job is one (operating system, region) filter combination to harvest.
type Job struct {
	OperatingSystem string
	Region          string
}

// BuildJobs expands the validated catalogs into the run's job list, one job
// per combination, grouped by operating system. The pool consumes the list
// from the end, so the last combination built is the first harvested.
func BuildJobs(operatingSystems, regions []string) []Job {
	jobs := make([]Job, 0, len(operatingSystems)*len(regions))
	for _, os := range operatingSystems {
		for _, region := range regions {
			jobs = append(jobs, Job{OperatingSystem: os, Region: region})
		}
	}
	return jobs
}
