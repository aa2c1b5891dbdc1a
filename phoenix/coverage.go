package phoenix

// Coverage summarizes how much of the Phoenix certificate universe has a
// locally stored evaluation. Dashboard metric only, not on the approval path.
type Coverage struct {
	TotalExternal  int      `json:"total_external"`
	TotalProcessed int      `json:"total_processed"`
	CoveragePct    float64  `json:"coverage_pct"`
	Missing        []string `json:"missing"`  // in Phoenix, no local evaluation
	OrphanedLocal  []string `json:"orphaned"` // evaluated locally, gone from Phoenix
}

// CalculateProcessingCoverage correlates the external certificate list with
// the cert numbers that have local evaluations.
func CalculateProcessingCoverage(external []Certificate, localCertNos []string) Coverage {
	missing, orphaned := CompareCertificates(external, localCertNos)

	processed := len(external) - len(missing)
	pct := 0.0
	if len(external) > 0 {
		pct = float64(processed) / float64(len(external)) * 100
	}

	return Coverage{
		TotalExternal:  len(external),
		TotalProcessed: processed,
		CoveragePct:    pct,
		Missing:        missing,
		OrphanedLocal:  orphaned,
	}
}

// CompareCertificates returns the cert numbers present in Phoenix but not
// locally, and those present locally but not in Phoenix.
func CompareCertificates(external []Certificate, localCertNos []string) (missing, orphaned []string) {
	local := make(map[string]bool, len(localCertNos))
	for _, certNo := range localCertNos {
		local[certNo] = true
	}

	seen := make(map[string]bool, len(external))
	missing = []string{}
	for _, cert := range external {
		if cert.CertNo == "" {
			continue
		}
		seen[cert.CertNo] = true
		if !local[cert.CertNo] {
			missing = append(missing, cert.CertNo)
		}
	}

	orphaned = []string{}
	for _, certNo := range localCertNos {
		if !seen[certNo] {
			orphaned = append(orphaned, certNo)
		}
	}
	return missing, orphaned
}
