package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Claims: one row per attempt, written once
			CREATE TABLE claims (
				attempt_id VARCHAR(255) PRIMARY KEY,
				work_item_id VARCHAR(255) NOT NULL,
				step_key VARCHAR(255) NOT NULL,
				claimed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				document JSONB NOT NULL
			);

			CREATE INDEX idx_claims_step ON claims(work_item_id, step_key, claimed_at);

			-- Handoff artifacts: append-only event log
			CREATE TABLE handoff_artifacts (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(1024) NOT NULL UNIQUE,
				work_item_id VARCHAR(255) NOT NULL,
				step_key VARCHAR(255) NOT NULL,
				attempt_id VARCHAR(255) NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
				document JSONB NOT NULL
			);

			CREATE INDEX idx_handoff_artifacts_work_item ON handoff_artifacts(work_item_id, recorded_at);
			CREATE INDEX idx_handoff_artifacts_step ON handoff_artifacts(work_item_id, step_key, recorded_at);
		`,
		2: `
			-- Work items, gate decisions and schedule snapshots are replaceable documents
			CREATE TABLE work_items (
				id VARCHAR(255) PRIMARY KEY,
				status VARCHAR(50) NOT NULL,
				document JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_work_items_status ON work_items(status);

			CREATE TABLE gate_decisions (
				work_item_id VARCHAR(255) NOT NULL,
				gate_key VARCHAR(255) NOT NULL,
				document JSONB NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (work_item_id, gate_key)
			);

			CREATE TABLE schedules (
				work_item_id VARCHAR(255) PRIMARY KEY,
				document JSONB NOT NULL,
				generated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
