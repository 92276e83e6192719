// Package normalize maps raw actor records of each source onto the
// canonical job shape. Every function here is total: malformed input
// yields nil or empty values, never an error or a panic.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"job_scrooper/models"
)

type sourceMapper func(data json.RawMessage) *models.NormalizedJob

var mappers = map[string]sourceMapper{
	models.SourceIndeed:   normalizeIndeed,
	models.SourceLinkedIn: normalizeLinkedIn,
}

// Supported reports whether items tagged with source can be normalized.
func Supported(source string) bool {
	_, ok := mappers[source]
	return ok
}

// Normalize converts a raw item into a NormalizedJob, or nil when the item
// is unusable (unknown source, undecodable, or missing title or company).
func Normalize(item models.RawItem) *models.NormalizedJob {
	mapper, ok := mappers[item.Source]
	if !ok || len(item.Data) == 0 {
		return nil
	}

	job := mapper(item.Data)
	if job == nil || job.Title == "" || job.Company == "" {
		return nil
	}
	job.Source = item.Source
	return job
}

// NormalizeAll normalizes items, dropping the unusable ones.
func NormalizeAll(items []models.RawItem) []*models.NormalizedJob {
	jobs := make([]*models.NormalizedJob, 0, len(items))
	for _, item := range items {
		if job := Normalize(item); job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

type indeedItem struct {
	ID                FlexString  `json:"id"`
	JobKey            FlexString  `json:"jobKey"`
	PositionName      FlexString  `json:"positionName"`
	Title             FlexString  `json:"title"`
	Company           FlexString  `json:"company"`
	CompanyName       FlexString  `json:"companyName"`
	Location          FlexString  `json:"location"`
	FormattedLocation FlexString  `json:"formattedLocation"`
	URL               FlexString  `json:"url"`
	JobURL            FlexString  `json:"jobUrl"`
	ExternalApplyLink FlexString  `json:"externalApplyLink"`
	ApplyURL          FlexString  `json:"applyUrl"`
	Description       FlexString  `json:"description"`
	DescriptionHTML   FlexString  `json:"descriptionHTML"`
	Salary            FlexString  `json:"salary"`
	SalaryMin         flexFloat   `json:"salaryMin"`
	SalaryMax         flexFloat   `json:"salaryMax"`
	JobType           flexStrings `json:"jobType"`
	Remote            flexBool    `json:"remote"`
}

func normalizeIndeed(data json.RawMessage) *models.NormalizedJob {
	var it indeedItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil
	}

	job := &models.NormalizedJob{
		SourceJobID: FirstNonEmpty(it.ID.String(), it.JobKey.String()),
		Title:       FirstNonEmpty(it.PositionName.String(), it.Title.String()),
		Company:     FirstNonEmpty(it.Company.String(), it.CompanyName.String()),
		Location:    optional(FirstNonEmpty(it.Location.String(), it.FormattedLocation.String())),
		ApplyURL: FirstNonEmpty(it.ExternalApplyLink.String(), it.ApplyURL.String(),
			it.URL.String(), it.JobURL.String()),
	}
	job.DescriptionRaw = firstRaw(it.DescriptionHTML.String(), it.Description.String())
	job.DescriptionClean = StripHTML(job.DescriptionRaw)

	job.SalaryMin, job.SalaryMax = it.SalaryMin.Ptr(), it.SalaryMax.Ptr()
	if job.SalaryMin == nil && job.SalaryMax == nil {
		job.SalaryMin, job.SalaryMax = ParseSalary(it.Salary.String())
	}

	job.JobType = InferJobType(it.JobType...)
	job.RemoteType = InferRemoteType(it.Remote, "", job.LocationOrEmpty(), job.Title, job.DescriptionClean)
	return job
}

type linkedinItem struct {
	JobID           FlexString  `json:"jobId"`
	ID              FlexString  `json:"id"`
	Title           FlexString  `json:"title"`
	JobTitle        FlexString  `json:"jobTitle"`
	Company         FlexString  `json:"company"`
	CompanyName     FlexString  `json:"companyName"`
	Location        FlexString  `json:"location"`
	Place           FlexString  `json:"place"`
	ApplyURL        FlexString  `json:"applyUrl"`
	ListingURL      FlexString  `json:"listingUrl"`
	JobURL          FlexString  `json:"jobUrl"`
	Link            FlexString  `json:"link"`
	Description     FlexString  `json:"description"`
	DescriptionHTML FlexString  `json:"descriptionHtml"`
	Salary          FlexString  `json:"salary"`
	EmploymentType  flexStrings `json:"employmentType"`
	WorkplaceType   FlexString  `json:"workplaceType"`
}

var linkedinViewIDRe = regexp.MustCompile(`/jobs/view/(?:[^/?#]*-)?(\d+)`)

func normalizeLinkedIn(data json.RawMessage) *models.NormalizedJob {
	var it linkedinItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil
	}

	listing := FirstNonEmpty(it.ListingURL.String(), it.JobURL.String(), it.Link.String())
	job := &models.NormalizedJob{
		SourceJobID: FirstNonEmpty(it.JobID.String(), it.ID.String(), LinkedInJobID(listing)),
		Title:       FirstNonEmpty(it.Title.String(), it.JobTitle.String()),
		Company:     FirstNonEmpty(it.Company.String(), it.CompanyName.String()),
		Location:    optional(FirstNonEmpty(it.Location.String(), it.Place.String())),
		ApplyURL:    FirstNonEmpty(it.ApplyURL.String(), listing),
	}
	job.DescriptionRaw = firstRaw(it.DescriptionHTML.String(), it.Description.String())
	job.DescriptionClean = StripHTML(job.DescriptionRaw)
	job.SalaryMin, job.SalaryMax = ParseSalary(it.Salary.String())
	job.JobType = InferJobType(it.EmploymentType...)
	job.RemoteType = InferRemoteType(flexBool{}, it.WorkplaceType.String(), job.LocationOrEmpty(), job.Title, job.DescriptionClean)
	return job
}

// LinkedInJobID extracts the numeric posting id from a /jobs/view/ URL.
func LinkedInJobID(u string) string {
	if m := linkedinViewIDRe.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	return ""
}

// InferJobType maps free-form employment labels onto JobType.
func InferJobType(labels ...string) *models.JobType {
	for _, label := range labels {
		l := strings.ToLower(label)
		var jt models.JobType
		switch {
		case strings.Contains(l, "full"):
			jt = models.JobTypeFullTime
		case strings.Contains(l, "part"):
			jt = models.JobTypePartTime
		case strings.Contains(l, "contract"), strings.Contains(l, "freelance"):
			jt = models.JobTypeContract
		case strings.Contains(l, "temp"), strings.Contains(l, "seasonal"):
			jt = models.JobTypeTemporary
		case strings.Contains(l, "intern"):
			jt = models.JobTypeInternship
		default:
			continue
		}
		return &jt
	}
	return nil
}

// InferRemoteType prefers an explicit flag or workplace label, then looks
// at location and title, then at the description.
func InferRemoteType(remote flexBool, workplace, location, title, description string) *models.RemoteType {
	if remote.Valid && remote.Value {
		return remoteType(models.RemoteTypeRemote)
	}
	if rt := remoteFromText(workplace); rt != nil {
		return rt
	}
	if rt := remoteFromText(location + " " + title); rt != nil {
		return rt
	}
	return remoteFromText(description)
}

func remoteFromText(text string) *models.RemoteType {
	blob := strings.ToLower(text)
	switch {
	case strings.Contains(blob, "hybrid"):
		return remoteType(models.RemoteTypeHybrid)
	case strings.Contains(blob, "remote"):
		return remoteType(models.RemoteTypeRemote)
	case strings.Contains(blob, "on-site"), strings.Contains(blob, "onsite"), strings.Contains(blob, "on site"), strings.Contains(blob, "in-office"):
		return remoteType(models.RemoteTypeOnsite)
	}
	return nil
}

func remoteType(rt models.RemoteType) *models.RemoteType {
	return &rt
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstRaw(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
