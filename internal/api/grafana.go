package api

// grafanaDashboardJSON is an importable dashboard template over the
// persisted schema (monitors, execution_logs, performance_metrics).
// The data source placeholder is resolved by Grafana's import flow.
const grafanaDashboardJSON = `{
  "__inputs": [
    {
      "name": "DS_POSTGRESQL",
      "label": "PostgreSQL",
      "description": "PostgreSQL data source for synthetic monitoring",
      "type": "datasource",
      "pluginId": "postgres",
      "pluginName": "PostgreSQL"
    }
  ],
  "__requires": [
    {"type": "grafana", "id": "grafana", "name": "Grafana", "version": "8.0.0"},
    {"type": "datasource", "id": "postgres", "name": "PostgreSQL", "version": "1.0.0"},
    {"type": "panel", "id": "timeseries", "name": "Time series", "version": ""},
    {"type": "panel", "id": "stat", "name": "Stat", "version": ""}
  ],
  "annotations": {"list": []},
  "editable": true,
  "gnetId": null,
  "graphTooltip": 1,
  "id": null,
  "links": [],
  "panels": [
    {
      "datasource": "${DS_POSTGRESQL}",
      "fieldConfig": {
        "defaults": {
          "color": {"mode": "palette-classic"},
          "custom": {
            "axisLabel": "",
            "axisPlacement": "auto",
            "barAlignment": 0,
            "drawStyle": "line",
            "fillOpacity": 10,
            "gradientMode": "none",
            "lineInterpolation": "linear",
            "lineWidth": 2,
            "pointSize": 5,
            "scaleDistribution": {"type": "linear"},
            "showPoints": "never",
            "spanNulls": true
          },
          "mappings": [],
          "thresholds": {
            "mode": "absolute",
            "steps": [
              {"color": "green", "value": null},
              {"color": "red", "value": 80}
            ]
          },
          "unit": "ms"
        },
        "overrides": []
      },
      "gridPos": {"h": 8, "w": 24, "x": 0, "y": 0},
      "id": 1,
      "options": {
        "legend": {"calcs": ["mean", "max"], "displayMode": "table", "placement": "right"},
        "tooltip": {"mode": "multi"}
      },
      "pluginVersion": "8.0.0",
      "targets": [
        {
          "datasource": "${DS_POSTGRESQL}",
          "format": "time_series",
          "group": [],
          "metricColumn": "none",
          "rawQuery": true,
          "rawSql": "SELECT\n  pm.recorded_at AS time,\n  m.name || ' - ' || pm.metric_name as metric,\n  pm.metric_value as value\nFROM performance_metrics pm\nJOIN execution_logs el ON pm.execution_log_id = el.id\nJOIN monitors m ON el.monitor_id = m.id\nWHERE\n  $__timeFilter(pm.recorded_at)\n  AND pm.metric_name IN ('ttfb_ms', 'dom_content_loaded_ms', 'page_load_time_ms')\nORDER BY pm.recorded_at",
          "refId": "A",
          "select": [[{"params": ["value"], "type": "column"}]],
          "timeColumn": "time",
          "where": [{"name": "$__timeFilter", "params": [], "type": "macro"}]
        }
      ],
      "title": "Performance Metrics Over Time",
      "type": "timeseries"
    },
    {
      "datasource": "${DS_POSTGRESQL}",
      "fieldConfig": {
        "defaults": {
          "color": {"mode": "thresholds"},
          "mappings": [],
          "thresholds": {
            "mode": "absolute",
            "steps": [
              {"color": "green", "value": null},
              {"color": "yellow", "value": 1000},
              {"color": "red", "value": 3000}
            ]
          },
          "unit": "ms"
        },
        "overrides": []
      },
      "gridPos": {"h": 4, "w": 8, "x": 0, "y": 8},
      "id": 2,
      "options": {
        "colorMode": "background",
        "graphMode": "area",
        "justifyMode": "auto",
        "orientation": "auto",
        "reduceOptions": {"calcs": ["lastNotNull"], "fields": "", "values": false},
        "textMode": "auto"
      },
      "pluginVersion": "8.0.0",
      "targets": [
        {
          "datasource": "${DS_POSTGRESQL}",
          "format": "table",
          "rawQuery": true,
          "rawSql": "SELECT\n  AVG(pm.metric_value) as value\nFROM performance_metrics pm\nWHERE\n  pm.metric_name = 'ttfb_ms'\n  AND $__timeFilter(pm.recorded_at)",
          "refId": "A"
        }
      ],
      "title": "Average TTFB",
      "type": "stat"
    },
    {
      "datasource": "${DS_POSTGRESQL}",
      "fieldConfig": {
        "defaults": {
          "color": {"mode": "thresholds"},
          "mappings": [],
          "thresholds": {
            "mode": "absolute",
            "steps": [
              {"color": "green", "value": null},
              {"color": "yellow", "value": 2000},
              {"color": "red", "value": 5000}
            ]
          },
          "unit": "ms"
        },
        "overrides": []
      },
      "gridPos": {"h": 4, "w": 8, "x": 8, "y": 8},
      "id": 3,
      "options": {
        "colorMode": "background",
        "graphMode": "area",
        "justifyMode": "auto",
        "orientation": "auto",
        "reduceOptions": {"calcs": ["lastNotNull"], "fields": "", "values": false},
        "textMode": "auto"
      },
      "pluginVersion": "8.0.0",
      "targets": [
        {
          "datasource": "${DS_POSTGRESQL}",
          "format": "table",
          "rawQuery": true,
          "rawSql": "SELECT\n  AVG(pm.metric_value) as value\nFROM performance_metrics pm\nWHERE\n  pm.metric_name = 'page_load_time_ms'\n  AND $__timeFilter(pm.recorded_at)",
          "refId": "A"
        }
      ],
      "title": "Average Page Load Time",
      "type": "stat"
    },
    {
      "datasource": "${DS_POSTGRESQL}",
      "fieldConfig": {
        "defaults": {
          "color": {"mode": "thresholds"},
          "mappings": [
            {"options": {"0": {"color": "red", "index": 1, "text": "Down"}}, "type": "value"},
            {"options": {"1": {"color": "green", "index": 0, "text": "Up"}}, "type": "value"}
          ],
          "thresholds": {
            "mode": "absolute",
            "steps": [
              {"color": "green", "value": null}
            ]
          }
        },
        "overrides": []
      },
      "gridPos": {"h": 4, "w": 8, "x": 16, "y": 8},
      "id": 4,
      "options": {
        "colorMode": "background",
        "graphMode": "none",
        "justifyMode": "auto",
        "orientation": "auto",
        "reduceOptions": {"calcs": ["lastNotNull"], "fields": "", "values": false},
        "textMode": "auto"
      },
      "pluginVersion": "8.0.0",
      "targets": [
        {
          "datasource": "${DS_POSTGRESQL}",
          "format": "table",
          "rawQuery": true,
          "rawSql": "SELECT\n  CASE WHEN status = 'success' THEN 1 ELSE 0 END as value\nFROM execution_logs\nORDER BY completed_at DESC\nLIMIT 1",
          "refId": "A"
        }
      ],
      "title": "Latest Check Status",
      "type": "stat"
    }
  ],
  "refresh": "30s",
  "schemaVersion": 27,
  "style": "dark",
  "tags": ["synthetic", "monitoring", "performance"],
  "templating": {"list": []},
  "time": {"from": "now-6h", "to": "now"},
  "timepicker": {},
  "timezone": "browser",
  "title": "Synthetic Monitoring Dashboard",
  "uid": "synthetic-monitoring",
  "version": 1,
  "description": "Dashboard for synthetic monitoring metrics. SETUP REQUIRED: replace ${DS_POSTGRESQL} with your PostgreSQL data source UID in all panel queries."
}
`
