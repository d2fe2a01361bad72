package gateway

import "github.com/wesleyorama2/brxload/internal/performance/selector"

// DefaultScenarios returns the NWEA dashboard query mix.
func DefaultScenarios() []selector.Scenario {
	return []selector.Scenario{
		{
			Name: "UC1_District_Term_Summary",
			Query: `SELECT
            s.SCHOOL_NAME,
            tr.SUBJECT,
            tr.TERM,
            COUNT(DISTINCT tr.STUDENT_ID) as student_count,
            AVG(tr.TEST_RIT_SCORE) as avg_rit_score
        FROM NWEA.ASSESSMENT_BSD.TEST_RESULTS tr
        JOIN NWEA.ASSESSMENT_BSD.SCHOOL s ON tr.SCHOOL_ID = s.SCHOOL_ID
        JOIN NWEA.ASSESSMENT_BSD.DISTRICT d ON s.DISTRICT_ID = d.DISTRICT_ID
        WHERE tr.TERM IN ('Fall 2025', 'Winter 2025', 'Spring 2025')
        GROUP BY s.SCHOOL_NAME, tr.SUBJECT, tr.TERM
        ORDER BY s.SCHOOL_NAME, tr.SUBJECT, tr.TERM`,
			Weight: 20,
		},
		{
			Name: "UC2_Class_Growth_Fall_Winter",
			Query: `SELECT * FROM NWEA.ASSESSMENT_BSD.VW_DASH_CLASS_GROWTH_2025
        WHERE TERM_FROM = 'Fall 2025' AND TERM_TO = 'Winter 2025'
        ORDER BY GROWTH_RIT DESC
        LIMIT 100`,
			Weight: 15,
		},
		{
			Name: "UC3_Student_Term_Growth",
			Query: `SELECT * FROM NWEA.ASSESSMENT_BSD.VW_DASH_STUDENT_TERM_GROWTH_2025
        WHERE STUDENT_ID <= 1000
        ORDER BY STUDENT_ID, SUBJECT, TERM`,
			Weight: 10,
		},
		{
			Name: "UC4_Educator_Completeness",
			Query: `SELECT
            e.EDUCATOR_NAME,
            c.CLASS_NAME,
            COUNT(CASE WHEN tr.TERM = 'Fall 2025' THEN 1 END) as fall_results_count,
            COUNT(CASE WHEN tr.TERM = 'Winter 2025' THEN 1 END) as winter_results_count,
            COUNT(CASE WHEN tr.TERM = 'Spring 2025' THEN 1 END) as spring_results_count
        FROM NWEA.ASSESSMENT_BSD.EDUCATOR e
        JOIN NWEA.ASSESSMENT_BSD.CLASS c ON e.EDUCATOR_ID = c.EDUCATOR_ID
        LEFT JOIN NWEA.ASSESSMENT_BSD.TEST_RESULTS tr ON c.CLASS_ID = tr.CLASS_ID
        GROUP BY e.EDUCATOR_NAME, c.CLASS_NAME
        ORDER BY e.EDUCATOR_NAME, c.CLASS_NAME`,
			Weight: 8,
		},
		{
			Name: "UC5_At_Risk_Students",
			Query: `SELECT
            s.STUDENT_ID,
            s.STUDENT_NAME,
            COUNT(DISTINCT tr.TERM) as terms_present,
            STRING_AGG(DISTINCT tr.TERM, ', ') as completed_terms
        FROM NWEA.ASSESSMENT_BSD.STUDENT s
        LEFT JOIN NWEA.ASSESSMENT_BSD.TEST_RESULTS tr ON s.STUDENT_ID = tr.STUDENT_ID
            AND tr.TERM IN ('Fall 2025', 'Winter 2025', 'Spring 2025')
        GROUP BY s.STUDENT_ID, s.STUDENT_NAME
        HAVING COUNT(DISTINCT tr.TERM) < 3
        ORDER BY terms_present, s.STUDENT_ID`,
			Weight: 12,
		},
		{
			Name: "UC6_Cross_Subject_Correlation",
			Query: `SELECT
            tr1.STUDENT_ID,
            tr1.TERM,
            tr1.TEST_RIT_SCORE as math_score,
            tr2.TEST_RIT_SCORE as reading_score,
            (tr1.TEST_RIT_SCORE - tr2.TEST_RIT_SCORE) as score_difference
        FROM NWEA.ASSESSMENT_BSD.TEST_RESULTS tr1
        JOIN NWEA.ASSESSMENT_BSD.TEST_RESULTS tr2
            ON tr1.STUDENT_ID = tr2.STUDENT_ID
            AND tr1.TERM = tr2.TERM
        WHERE tr1.SUBJECT = 'Mathematics'
            AND tr2.SUBJECT = 'Reading'
            AND tr1.TERM = 'Fall 2025'
        ORDER BY score_difference DESC
        LIMIT 500`,
			Weight: 10,
		},
		{
			Name: "UC7_Class_Distribution",
			Query: `SELECT
            c.CLASS_NAME,
            tr.TERM,
            COUNT(CASE WHEN tr.TEST_PERCENTILE < 25 THEN 1 END) as below_25,
            COUNT(CASE WHEN tr.TEST_PERCENTILE BETWEEN 25 AND 75 THEN 1 END) as mid_25_75,
            COUNT(CASE WHEN tr.TEST_PERCENTILE > 75 THEN 1 END) as above_75
        FROM NWEA.ASSESSMENT_BSD.TEST_RESULTS tr
        JOIN NWEA.ASSESSMENT_BSD.CLASS c ON tr.CLASS_ID = c.CLASS_ID
        WHERE tr.TERM IN ('Fall 2025', 'Winter 2025', 'Spring 2025')
        GROUP BY c.CLASS_NAME, tr.TERM
        ORDER BY c.CLASS_NAME, tr.TERM`,
			Weight: 10,
		},
		{
			Name: "UC8_Educator_Portfolio",
			Query: `SELECT * FROM NWEA.ASSESSMENT_BSD.VW_DASH_EDUCATOR_PORTFOLIO_2025
        WHERE EDUCATOR_ID <= 50
        ORDER BY EDUCATOR_ID, CLASS_NAME, TERM`,
			Weight: 15,
		},
	}
}
