package browser

import (
	"encoding/json"
	"fmt"
)

// extractScript returns JavaScript that collects the visible posts. A post
// is marked as already answered when an article directly below it in the
// same conversation is authored by ownHandle.
func extractScript(ownHandle string) string {
	handle, _ := json.Marshal(ownHandle)
	return fmt.Sprintf(`
		(function() {
			const own = %s.toLowerCase();
			const tweets = Array.from(document.querySelectorAll('article[data-testid="tweet"]'));
			const results = [];

			const handleOf = (el) => {
				const userNameEl = el.querySelector('[data-testid="User-Name"]');
				const link = userNameEl?.querySelector('a[href^="/"]');
				return (link?.getAttribute('href') || '').replace('/', '');
			};

			const getMetric = (el, testId) => {
				const metricEl = el.querySelector('[data-testid="' + testId + '"]');
				if (!metricEl) return '0';
				const ariaLabel = metricEl.getAttribute('aria-label');
				if (ariaLabel) {
					const match = ariaLabel.match(/^([\d,.]+[KkMm]?)/);
					return match ? match[1] : '0';
				}
				return metricEl.textContent?.trim() || '0';
			};

			tweets.forEach((el, i) => {
				try {
					const statusLink = el.querySelector('a[href*="/status/"]');
					const id = statusLink?.href?.match(/status\/(\d+)/)?.[1];
					if (!id) return;

					const next = tweets[i + 1];
					const hasExistingReply = !!own && !!next &&
						handleOf(next).toLowerCase() === own &&
						(next.textContent || '').includes('Replying to');

					results.push({
						id,
						authorHandle: handleOf(el),
						content: el.querySelector('[data-testid="tweetText"]')?.textContent || '',
						timestamp: el.querySelector('time')?.getAttribute('datetime') || '',
						likes: getMetric(el, 'like'),
						retweets: getMetric(el, 'retweet'),
						replies: getMetric(el, 'reply'),
						originalUrl: statusLink?.href || '',
						hasExistingReply
					});
				} catch (e) {
					console.error('Error extracting tweet:', e);
				}
			});

			return results;
		})()
	`, handle)
}
